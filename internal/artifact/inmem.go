package artifact

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// InMemoryService keeps artifacts in process memory. Intended for tests
// and single-process runs; versions are slice indexes, so they stay dense
// even though Delete drops whole artifacts only.
type InMemoryService struct {
	mu    sync.RWMutex
	blobs map[string][]llm.Part
}

func NewInMemoryService() *InMemoryService {
	return &InMemoryService{blobs: map[string][]llm.Part{}}
}

func (s *InMemoryService) key(app, user, session, filename string) string {
	return path.Join(app, user, scopeSegment(session, filename), filename)
}

func (s *InMemoryService) Save(ctx context.Context, app, user, session, filename string, part llm.Part) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkScope(app, user, session, filename); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(app, user, session, filename)
	s.blobs[k] = append(s.blobs[k], part)
	return len(s.blobs[k]) - 1, nil
}

func (s *InMemoryService) Load(ctx context.Context, app, user, session, filename string, version *int) (*llm.Part, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkScope(app, user, session, filename); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.blobs[s.key(app, user, session, filename)]
	if len(versions) == 0 {
		return nil, nil
	}
	idx := len(versions) - 1
	if version != nil {
		idx = *version
	}
	if idx < 0 || idx >= len(versions) {
		return nil, nil
	}
	part := versions[idx]
	return &part, nil
}

func (s *InMemoryService) ListKeys(ctx context.Context, app, user, session string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if app == "" || user == "" || session == "" {
		return nil, fmt.Errorf("%w: app, user, and session are required", ErrInvalidKey)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessionPrefix := path.Join(app, user, session) + "/"
	userPrefix := path.Join(app, user, "user") + "/"
	var out []string
	for k := range s.blobs {
		switch {
		case strings.HasPrefix(k, sessionPrefix):
			out = append(out, strings.TrimPrefix(k, sessionPrefix))
		case strings.HasPrefix(k, userPrefix):
			out = append(out, strings.TrimPrefix(k, userPrefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryService) Delete(ctx context.Context, app, user, session, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkScope(app, user, session, filename); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, s.key(app, user, session, filename))
	return nil
}

func (s *InMemoryService) ListVersions(ctx context.Context, app, user, session, filename string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkScope(app, user, session, filename); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.blobs[s.key(app, user, session, filename)]
	out := make([]int, 0, len(versions))
	for i := range versions {
		out = append(out, i)
	}
	return out, nil
}
