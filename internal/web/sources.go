package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/openingdrill/internal/gitsource"
	"github.com/conorfennell/openingdrill/internal/storage"
	"github.com/conorfennell/openingdrill/internal/sync"
)

type sourceRequest struct {
	Path string `json:"path" validate:"required,max=1024"`
}

type sourceResponse struct {
	ID          int64              `json:"id"`
	Path        string             `json:"path"`
	Type        storage.SourceType `json:"type"`
	LastScanned *time.Time         `json:"last_scanned,omitempty"`
}

type syncResponse struct {
	Report sync.Report `json:"report"`
	Error  string      `json:"error,omitempty"`
}

func toSourceResponse(src storage.Source) sourceResponse {
	resp := sourceResponse{ID: src.ID, Path: src.Path, Type: src.Type}
	if src.LastScanned.Valid {
		t := src.LastScanned.Time
		resp.LastScanned = &t
	}
	return resp
}

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetAllSources(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		resp := make([]sourceResponse, 0, len(sources))
		for _, src := range sources {
			resp = append(resp, toSourceResponse(src))
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// handleAddSource registers a deck source. Paths that look like repository
// URLs become git sources; anything else is a local directory.
func (s *Server) handleAddSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sourceRequest
		if err := s.decode(r, &req, false); err != nil {
			s.handleError(w, r, err)
			return
		}

		sourceType := storage.SourceLocal
		if gitsource.IsGitURL(req.Path) {
			sourceType = storage.SourceGit
		}
		id, err := s.db.InsertSource(r.Context(), req.Path, sourceType)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, sourceResponse{ID: id, Path: req.Path, Type: sourceType})
	}
}

// handleDeleteSource deletes a source. Its lines are deactivated, reviews stay.
func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			s.handleError(w, r, fmt.Errorf("%w: invalid source ID", errInvalidInput))
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			s.handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground to make the user wait.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.syncer.Run(r.Context())
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Manual sync failed", "error", err)
			respondJSON(w, http.StatusBadGateway, syncResponse{Report: report, Error: err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, syncResponse{Report: report})
	}
}
