// Package session persists conversation sessions and their events so
// multi-turn runs survive across requests and process restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eduramirezh/adk-go/internal/ids"
	"github.com/eduramirezh/adk-go/internal/llm"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)

// Session is one conversation thread for an app/user pair. Events are
// ordered oldest first.
type Session struct {
	ID        string    `json:"id"`
	AppName   string    `json:"app_name"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Events    []Event   `json:"events,omitempty"`
}

// Event is one turn appended to a session. Author is either "user" or the
// model name that produced the response.
type Event struct {
	ID           string        `json:"id"`
	InvocationID string        `json:"invocation_id,omitempty"`
	Author       string        `json:"author"`
	Timestamp    time.Time     `json:"timestamp"`
	Response     *llm.Response `json:"response,omitempty"`
}

// NewEvent fills in the id and timestamp.
func NewEvent(invocationID, author string, resp *llm.Response) (Event, error) {
	id, err := ids.New()
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:           id,
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
		Response:     resp,
	}, nil
}

// Service stores sessions. Get returns the session with its events;
// List returns sessions without events, most recently updated first.
// Append writes the event and mirrors it onto the passed session.
type Service interface {
	Create(ctx context.Context, app, user, id string) (*Session, error)
	Get(ctx context.Context, app, user, id string) (*Session, error)
	Append(ctx context.Context, sess *Session, ev Event) error
	List(ctx context.Context, app, user string) ([]*Session, error)
	Delete(ctx context.Context, app, user, id string) error
}

func checkSessionScope(app, user string) error {
	if app == "" || user == "" {
		return fmt.Errorf("app and user are required")
	}
	return nil
}

// fillEvent assigns defaults for an event about to be appended.
func fillEvent(ev *Event) error {
	if ev.ID == "" {
		id, err := ids.New()
		if err != nil {
			return err
		}
		ev.ID = id
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return nil
}

func checkAppendTarget(sess *Session) error {
	if sess == nil || sess.ID == "" || sess.AppName == "" || sess.UserID == "" {
		return fmt.Errorf("append needs a session with id, app, and user set")
	}
	return nil
}
