package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eduramirezh/adk-go/internal/ids"
	"github.com/eduramirezh/adk-go/internal/llm"
	"github.com/eduramirezh/adk-go/internal/notify"
	"github.com/eduramirezh/adk-go/internal/session"
)

// RunRequest is the body of POST /v1/run and /v1/run_sse. Exactly one of
// Prompt and NewMessage supplies the user turn.
type RunRequest struct {
	AppName      string          `json:"app_name,omitempty"`
	UserID       string          `json:"user_id"`
	SessionID    string          `json:"session_id,omitempty"`
	Model        string          `json:"model,omitempty"`
	System       string          `json:"system,omitempty"`
	Prompt       string          `json:"prompt,omitempty"`
	NewMessage   *llm.Content    `json:"new_message,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

// RunResponse is the body of a successful POST /v1/run.
type RunResponse struct {
	SessionID    string        `json:"session_id"`
	InvocationID string        `json:"invocation_id"`
	Response     *llm.Response `json:"response"`
}

// runContext carries one prepared invocation between the shared setup and
// the transport-specific execution paths.
type runContext struct {
	app      string
	user     string
	model    string
	system   string
	inv      string
	sess     *session.Session
	contents []llm.Content
	schema   json.RawMessage
	started  time.Time
}

func (s *Server) getOrCreateSession(ctx context.Context, app, user, id string) (*session.Session, error) {
	if id != "" {
		sess, err := s.sessions.Get(ctx, app, user, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
	}
	return s.sessions.Create(ctx, app, user, id)
}

// historyContents replays a session's stored turns as model input,
// skipping error frames and events without content.
func historyContents(sess *session.Session) []llm.Content {
	var out []llm.Content
	for _, ev := range sess.Events {
		if ev.Response == nil || ev.Response.Content == nil || ev.Response.ErrorCode != "" {
			continue
		}
		out = append(out, *ev.Response.Content)
	}
	return out
}

// prepareRun resolves the session, appends the user turn to it, and
// assembles the model input. On failure it reports the HTTP status the
// handler should answer with.
func (s *Server) prepareRun(ctx context.Context, req *RunRequest) (*runContext, int, error) {
	if req.UserID == "" {
		return nil, http.StatusBadRequest, errors.New("user_id is required")
	}
	if req.Prompt == "" && req.NewMessage == nil {
		return nil, http.StatusBadRequest, errors.New("prompt or new_message is required")
	}
	if req.Prompt != "" && req.NewMessage != nil {
		return nil, http.StatusBadRequest, errors.New("provide either prompt or new_message, not both")
	}

	app := req.AppName
	if app == "" {
		app = s.cfg.App.Name
	}
	model := req.Model
	if model == "" {
		model = s.cfg.Model.Default
	}

	sess, err := s.getOrCreateSession(ctx, app, req.UserID, req.SessionID)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	userContent := llm.UserContent(req.Prompt)
	if req.NewMessage != nil {
		userContent = *req.NewMessage
		if userContent.Role == "" {
			userContent.Role = llm.RoleUser
		}
	}

	inv, err := ids.NewInvocation()
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	contents := append(historyContents(sess), userContent)

	userEvent, err := sessionUserEvent(inv, userContent)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if err := s.sessions.Append(ctx, sess, userEvent); err != nil {
		return nil, http.StatusInternalServerError, err
	}

	return &runContext{
		app:      app,
		user:     req.UserID,
		model:    model,
		system:   req.System,
		inv:      inv,
		sess:     sess,
		contents: contents,
		schema:   req.OutputSchema,
		started:  time.Now(),
	}, 0, nil
}

func (s *Server) generateOptions(rc *runContext) llm.GenerateOptions {
	policy := s.cfg.RetryPolicy()
	return llm.GenerateOptions{
		Client:       s.client,
		Model:        rc.model,
		Registry:     s.registry,
		Contents:     rc.contents,
		System:       rc.system,
		OutputSchema: rc.schema,
		RetryPolicy:  &policy,
		Logger:       s.log,
		Metadata: map[string]string{
			"invocation_id": rc.inv,
			"app_name":      rc.app,
			"user_id":       rc.user,
			"session_id":    rc.sess.ID,
		},
	}
}

// appendModelEvent records a finished model turn on the session.
func (s *Server) appendModelEvent(ctx context.Context, rc *runContext, resp *llm.Response) error {
	ev, err := session.NewEvent(rc.inv, rc.model, resp)
	if err != nil {
		return err
	}
	return s.sessions.Append(ctx, rc.sess, ev)
}

func sessionUserEvent(inv string, content llm.Content) (session.Event, error) {
	return session.NewEvent(inv, "user", &llm.Response{Content: &content, TurnComplete: true})
}

// publishCompletion reports the run's outcome to the configured notifier.
// Failures are logged, never surfaced to the client.
func (s *Server) publishCompletion(rc *runContext, outcome, code string, usage *llm.Usage) {
	ev := &notify.RunCompletedEvent{
		InvocationID: rc.inv,
		AppName:      rc.app,
		SessionID:    rc.sess.ID,
		Outcome:      outcome,
		ErrorCode:    code,
		Usage:        usage,
		DurationMS:   time.Since(rc.started).Milliseconds(),
		CompletedAt:  time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.log.Warn("completion publish failed",
			zap.String("invocation_id", rc.inv), zap.Error(err))
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	rc, status, err := s.prepareRun(r.Context(), &req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	resp, err := llm.Generate(r.Context(), s.generateOptions(rc))
	if err != nil {
		s.publishCompletion(rc, outcomeForError(err), errorCode(err), nil)
		writeError(w, statusForError(err), err.Error())
		return
	}

	if err := s.appendModelEvent(r.Context(), rc, resp); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.publishCompletion(rc, notify.OutcomeCompleted, "", resp.Usage)

	writeJSON(w, http.StatusOK, RunResponse{
		SessionID:    rc.sess.ID,
		InvocationID: rc.inv,
		Response:     resp,
	})
}

func (s *Server) handleRunSSE(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	rc, status, err := s.prepareRun(r.Context(), &req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	stream, err := llm.StreamGenerate(r.Context(), s.generateOptions(rc))
	if err != nil {
		s.publishCompletion(rc, outcomeForError(err), errorCode(err), nil)
		writeError(w, statusForError(err), err.Error())
		return
	}

	b := NewBroadcaster()
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		defer b.Close()
		for ev := range stream.Events() {
			if ev.Err != nil {
				b.Send(errorFrame(ev.Err))
				return
			}
			b.Send(ev.Response)
		}
	}()

	WriteSSE(w, r, b, func() any {
		return map[string]string{
			"session_id":    rc.sess.ID,
			"invocation_id": rc.inv,
		}
	})

	// The client may be gone already; finish bookkeeping regardless.
	<-pumped
	s.finalizeStream(rc, stream)
}

// finalizeStream records the outcome of a finished streaming run: the
// merged model turn on success, a completion event either way.
func (s *Server) finalizeStream(rc *runContext, stream *llm.StreamResult) {
	final, err := stream.Response()
	if err != nil {
		s.publishCompletion(rc, outcomeForError(err), errorCode(err), nil)
		return
	}

	var usage *llm.Usage
	if final != nil {
		usage = final.Usage
		if aerr := s.appendModelEvent(context.Background(), rc, final); aerr != nil {
			s.log.Warn("model event append failed",
				zap.String("invocation_id", rc.inv), zap.Error(aerr))
		}
	}
	s.publishCompletion(rc, notify.OutcomeCompleted, "", usage)
}

func outcomeForError(err error) string {
	var abortErr *llm.AbortError
	if errors.Is(err, context.Canceled) || errors.As(err, &abortErr) {
		return notify.OutcomeCanceled
	}
	return notify.OutcomeFailed
}
