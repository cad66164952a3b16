package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eduramirezh/adk-go/internal/ids"
)

// InMemoryService keeps sessions in process memory. Reads return copies
// so callers never alias the stored state.
type InMemoryService struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // app/user → id → session
}

func NewInMemoryService() *InMemoryService {
	return &InMemoryService{sessions: map[string]map[string]*Session{}}
}

func ownerKey(app, user string) string {
	return app + "/" + user
}

func copySession(s *Session, withEvents bool) *Session {
	out := *s
	out.Events = nil
	if withEvents && len(s.Events) > 0 {
		out.Events = make([]Event, len(s.Events))
		copy(out.Events, s.Events)
	}
	return &out
}

func (s *InMemoryService) Create(ctx context.Context, app, user, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSessionScope(app, user); err != nil {
		return nil, err
	}
	if id == "" {
		newID, err := ids.New()
		if err != nil {
			return nil, err
		}
		id = newID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	owner := ownerKey(app, user)
	if s.sessions[owner] == nil {
		s.sessions[owner] = map[string]*Session{}
	}
	if _, exists := s.sessions[owner][id]; exists {
		return nil, fmt.Errorf("session %q: %w", id, ErrExists)
	}

	now := time.Now().UTC()
	sess := &Session{ID: id, AppName: app, UserID: user, CreatedAt: now, UpdatedAt: now}
	s.sessions[owner][id] = sess
	return copySession(sess, true), nil
}

func (s *InMemoryService) Get(ctx context.Context, app, user, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSessionScope(app, user); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.sessions[ownerKey(app, user)][id]
	if sess == nil {
		return nil, ErrNotFound
	}
	return copySession(sess, true), nil
}

func (s *InMemoryService) Append(ctx context.Context, sess *Session, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkAppendTarget(sess); err != nil {
		return err
	}
	if err := fillEvent(&ev); err != nil {
		return err
	}

	s.mu.Lock()
	stored := s.sessions[ownerKey(sess.AppName, sess.UserID)][sess.ID]
	if stored == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	stored.Events = append(stored.Events, ev)
	stored.UpdatedAt = ev.Timestamp
	s.mu.Unlock()

	sess.Events = append(sess.Events, ev)
	sess.UpdatedAt = ev.Timestamp
	return nil
}

func (s *InMemoryService) List(ctx context.Context, app, user string) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSessionScope(app, user); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.sessions[ownerKey(app, user)]
	out := make([]*Session, 0, len(byID))
	for _, sess := range byID {
		out = append(out, copySession(sess, false))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *InMemoryService) Delete(ctx context.Context, app, user, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkSessionScope(app, user); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := ownerKey(app, user)
	if _, ok := s.sessions[owner][id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions[owner], id)
	return nil
}
