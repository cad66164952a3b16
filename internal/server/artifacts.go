package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eduramirezh/adk-go/internal/artifact"
	"github.com/eduramirezh/adk-go/internal/llm"
)

func artifactScope(r *http.Request) (app, user, sessionID, name string, err error) {
	app, user, err = requestScope(r)
	if err != nil {
		return "", "", "", "", err
	}
	return app, user, chi.URLParam(r, "id"), chi.URLParam(r, "name"), nil
}

func writeArtifactError(w http.ResponseWriter, err error) {
	if errors.Is(err, artifact.ErrInvalidKey) {
		writeBadRequest(w, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// SaveArtifactResponse reports the version assigned to the stored part.
type SaveArtifactResponse struct {
	Version int `json:"version"`
}

func (s *Server) handleSaveArtifact(w http.ResponseWriter, r *http.Request) {
	app, user, sessionID, name, err := artifactScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var part llm.Part
	if err := json.NewDecoder(r.Body).Decode(&part); err != nil {
		writeBadRequest(w, "invalid part body")
		return
	}
	if part.Kind == "" {
		part.Kind = llm.PartText
	}

	version, err := s.artifacts.Save(r.Context(), app, user, sessionID, name, part)
	if err != nil {
		writeArtifactError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SaveArtifactResponse{Version: version})
}

func (s *Server) handleLoadArtifact(w http.ResponseWriter, r *http.Request) {
	app, user, sessionID, name, err := artifactScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var version *int
	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "version must be an integer")
			return
		}
		version = &v
	}

	part, err := s.artifacts.Load(r.Context(), app, user, sessionID, name, version)
	if err != nil {
		writeArtifactError(w, err)
		return
	}
	if part == nil {
		writeNotFound(w, "artifact not found")
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	app, user, err := requestScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	names, err := s.artifacts.ListKeys(r.Context(), app, user, chi.URLParam(r, "id"))
	if err != nil {
		writeArtifactError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleArtifactVersions(w http.ResponseWriter, r *http.Request) {
	app, user, sessionID, name, err := artifactScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	versions, err := s.artifacts.ListVersions(r.Context(), app, user, sessionID, name)
	if err != nil {
		writeArtifactError(w, err)
		return
	}
	if versions == nil {
		versions = []int{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	app, user, sessionID, name, err := artifactScope(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.artifacts.Delete(r.Context(), app, user, sessionID, name); err != nil {
		writeArtifactError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
