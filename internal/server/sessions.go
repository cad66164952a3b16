package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eduramirezh/adk-go/internal/session"
)

// CreateSessionRequest optionally pins the new session's id.
type CreateSessionRequest struct {
	ID string `json:"id,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	app, user, err := requestScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
	}

	sess, err := s.sessions.Create(r.Context(), app, user, req.ID)
	if err != nil {
		if errors.Is(err, session.ErrExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	app, user, err := requestScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	sessions, err := s.sessions.List(r.Context(), app, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	app, user, err := requestScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	sess, err := s.sessions.Get(r.Context(), app, user, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	app, user, err := requestScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.sessions.Delete(r.Context(), app, user, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
