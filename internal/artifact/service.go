// Package artifact stores named, versioned binary and text artifacts
// scoped to an app/user/session triple. A filename carrying the "user:"
// prefix lives in the user namespace instead and is visible across all of
// that user's sessions.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// UserNamespacePrefix marks filenames stored per user rather than per
// session.
const UserNamespacePrefix = "user:"

// ErrInvalidKey reports an unusable app/user/session/filename tuple.
var ErrInvalidKey = errors.New("invalid artifact key")

// Service is the artifact storage boundary. Versions are dense,
// monotonically increasing ints starting at 0 per filename.
type Service interface {
	// Save stores part as the next version of filename and returns the
	// version it was assigned.
	Save(ctx context.Context, app, user, session, filename string, part llm.Part) (int, error)
	// Load returns the given version, or the latest when version is nil.
	// A missing artifact or version returns (nil, nil).
	Load(ctx context.Context, app, user, session, filename string, version *int) (*llm.Part, error)
	// ListKeys returns the filenames visible to the session: its own plus
	// the user namespace, sorted.
	ListKeys(ctx context.Context, app, user, session string) ([]string, error)
	// Delete removes every version of filename.
	Delete(ctx context.Context, app, user, session, filename string) error
	// ListVersions returns the stored versions of filename in ascending
	// order, empty when the artifact does not exist.
	ListVersions(ctx context.Context, app, user, session, filename string) ([]int, error)
}

func scopeSegment(session, filename string) string {
	if strings.HasPrefix(filename, UserNamespacePrefix) {
		return "user"
	}
	return session
}

func checkScope(app, user, session, filename string) error {
	if app == "" || user == "" || session == "" {
		return fmt.Errorf("%w: app, user, and session are required", ErrInvalidKey)
	}
	if filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidKey)
	}
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return fmt.Errorf("%w: filename %q must be a single path segment", ErrInvalidKey, filename)
	}
	return nil
}
