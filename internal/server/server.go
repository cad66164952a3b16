// Package server exposes the runtime over HTTP: session CRUD, artifact
// access, one-shot and streaming runs, and task serving with parked
// input questions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/eduramirezh/adk-go/internal/artifact"
	"github.com/eduramirezh/adk-go/internal/config"
	"github.com/eduramirezh/adk-go/internal/llm"
	"github.com/eduramirezh/adk-go/internal/notify"
	"github.com/eduramirezh/adk-go/internal/session"
)

// Options carries the dependencies a Server needs. Config, Sessions, and
// Artifacts are required; the rest default to working no-ops.
type Options struct {
	Config    *config.Config
	Logger    *zap.Logger
	Client    *llm.Client
	Registry  *llm.Registry
	Sessions  session.Service
	Artifacts artifact.Service
	Notifier  notify.Notifier
}

// Server holds all dependencies for the HTTP API.
type Server struct {
	cfg       *config.Config
	log       *zap.Logger
	client    *llm.Client
	registry  *llm.Registry
	sessions  session.Service
	artifacts artifact.Service
	notifier  notify.Notifier

	mu      sync.Mutex
	brokers map[string]*InputBroker // live task inputs by task id
}

// New creates a server from its dependencies.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session service is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifact service is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	client := opts.Client
	if client == nil {
		var err error
		client, err = llm.DefaultClient()
		if err != nil {
			return nil, err
		}
	}
	return &Server{
		cfg:       opts.Config,
		log:       log.With(zap.String("component", "server")),
		client:    client,
		registry:  opts.Registry,
		sessions:  opts.Sessions,
		artifacts: opts.Artifacts,
		notifier:  notifier,
		brokers:   make(map[string]*InputBroker),
	}, nil
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/v1/apps/{app}/users/{user}/sessions", s.handleCreateSession)
	r.Get("/v1/apps/{app}/users/{user}/sessions", s.handleListSessions)
	r.Get("/v1/apps/{app}/users/{user}/sessions/{id}", s.handleGetSession)
	r.Delete("/v1/apps/{app}/users/{user}/sessions/{id}", s.handleDeleteSession)

	r.Get("/v1/apps/{app}/users/{user}/sessions/{id}/artifacts", s.handleListArtifacts)
	r.Post("/v1/apps/{app}/users/{user}/sessions/{id}/artifacts/{name}", s.handleSaveArtifact)
	r.Get("/v1/apps/{app}/users/{user}/sessions/{id}/artifacts/{name}", s.handleLoadArtifact)
	r.Delete("/v1/apps/{app}/users/{user}/sessions/{id}/artifacts/{name}", s.handleDeleteArtifact)
	r.Get("/v1/apps/{app}/users/{user}/sessions/{id}/artifacts/{name}/versions", s.handleArtifactVersions)

	r.Post("/v1/run", s.handleRun)
	r.Post("/v1/run_sse", s.handleRunSSE)

	r.Post("/v1/tasks", s.handleTask)
	r.Get("/v1/tasks/{id}/inputs", s.handleTaskInputs)
	r.Post("/v1/tasks/{id}/inputs/{qid}", s.handleTaskAnswer)

	return r
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully, unblocking any parked input waits first.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = s.cfg.Server.Addr
	}
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.cancelBrokers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("shut down")
	return nil
}

func (s *Server) registerBroker(taskID string, ib *InputBroker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.brokers[taskID]; exists {
		return false
	}
	s.brokers[taskID] = ib
	return true
}

func (s *Server) unregisterBroker(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.brokers, taskID)
}

func (s *Server) broker(taskID string) *InputBroker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brokers[taskID]
}

func (s *Server) cancelBrokers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ib := range s.brokers {
		ib.Cancel()
	}
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Detail: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message)
}

// statusForError maps a generation failure onto the response status. Caller
// mistakes read as 4xx, upstream trouble as 502.
func statusForError(err error) int {
	var (
		cfgErr     *llm.ConfigurationError
		invalidErr *llm.InvalidRequestError
		authErr    *llm.AuthenticationError
		deniedErr  *llm.AccessDeniedError
		nfErr      *llm.NotFoundError
		ctxLenErr  *llm.ContextLengthError
		rateErr    *llm.RateLimitError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &invalidErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &deniedErr):
		return http.StatusForbidden
	case errors.As(err, &nfErr):
		return http.StatusNotFound
	case errors.As(err, &ctxLenErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &rateErr):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// errorCode names an error class for frames and completion events.
func errorCode(err error) string {
	var lerr llm.Error
	if errors.As(err, &lerr) {
		switch lerr.(type) {
		case *llm.InvalidRequestError:
			return "invalid_request"
		case *llm.AuthenticationError:
			return "authentication"
		case *llm.AccessDeniedError:
			return "access_denied"
		case *llm.NotFoundError:
			return "not_found"
		case *llm.RequestTimeoutError:
			return "request_timeout"
		case *llm.ContextLengthError:
			return "context_length"
		case *llm.RateLimitError:
			return "rate_limit"
		case *llm.UnavailableError:
			return "unavailable"
		case *llm.ServerError:
			return "server_error"
		case *llm.MalformedChunkError:
			return "malformed_chunk"
		case *llm.StreamError:
			return "stream_error"
		case *llm.AbortError:
			return "aborted"
		case *llm.ConfigurationError:
			return "configuration"
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	}
	return "error"
}

// errorFrame converts a stream failure into the response frame SSE
// clients receive in place of content.
func errorFrame(err error) *llm.Response {
	return &llm.Response{
		ErrorCode:    errorCode(err),
		ErrorMessage: err.Error(),
		TurnComplete: true,
	}
}

func requestScope(r *http.Request) (app, user string, err error) {
	app = chi.URLParam(r, "app")
	user = chi.URLParam(r, "user")
	if app == "" || user == "" {
		return "", "", fmt.Errorf("app and user are required")
	}
	return app, user, nil
}
