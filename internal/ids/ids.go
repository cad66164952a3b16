// Package ids generates the ULID identifiers used for invocations,
// sessions, and session events.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

func New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewInvocation returns a run-scoped id with the "inv_" prefix so log
// lines and completion events are greppable by kind.
func NewInvocation() (string, error) {
	id, err := New()
	if err != nil {
		return "", err
	}
	return "inv_" + id, nil
}

// Make returns a new id, panicking on entropy failure. For constructors
// where an error return would poison every caller.
func Make() string {
	return ulid.Make().String()
}
