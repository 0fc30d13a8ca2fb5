package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/citepipe/citepipe/internal/batch"
	"github.com/citepipe/citepipe/internal/citation"
)

type createURLRequest struct {
	SectionID string `json:"section_id"`
	URL       string `json:"url"`
}

type linkRequest struct {
	ItemKey string `json:"item_key"`
}

type intentRequest struct {
	Intent string `json:"intent"`
}

type batchRequest struct {
	URLIDs []uuid.UUID `json:"url_ids"`
	Limit  int         `json:"limit"`
}

// operation is any guarded service call keyed by URL id.
type operation func(ctx context.Context, urlID uuid.UUID) (citation.ProcessingResult, error)

func (s *Server) createURL(w http.ResponseWriter, r *http.Request) {
	var req createURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url is required")
		return
	}
	entity, err := s.svc.CreateURL(r.Context(), req.SectionID, req.URL)
	if err != nil {
		if errors.Is(err, citation.ErrDuplicateURL) {
			writeError(s.logger, w, http.StatusConflict, "url already tracked in this section")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, entity)
}

func (s *Server) listURLs(w http.ResponseWriter, r *http.Request) {
	var filter *citation.ProcessingStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := citation.ProcessingStatus(raw)
		if !status.Known() {
			writeError(s.logger, w, http.StatusBadRequest, "unknown status filter")
			return
		}
		filter = &status
	}
	entities, err := s.svc.ListURLs(r.Context(), filter)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"urls": entities})
}

func (s *Server) getURL(w http.ResponseWriter, r *http.Request) {
	id, ok := s.urlID(w, r)
	if !ok {
		return
	}
	entity, err := s.svc.GetURL(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, entity)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.urlID(w, r)
	if !ok {
		return
	}
	attempts, err := s.svc.History(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"attempts": attempts})
}

func (s *Server) processURL(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, s.svc.Process)
}

func (s *Server) linkURL(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemKey == "" {
		writeError(s.logger, w, http.StatusBadRequest, "item_key is required")
		return
	}
	s.runOperation(w, r, func(ctx context.Context, id uuid.UUID) (citation.ProcessingResult, error) {
		return s.svc.LinkToExistingItem(ctx, id, req.ItemKey)
	})
}

func (s *Server) unlinkURL(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, s.svc.Unlink)
}

func (s *Server) setIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Intent == "" {
		writeError(s.logger, w, http.StatusBadRequest, "intent is required")
		return
	}
	s.runOperation(w, r, func(ctx context.Context, id uuid.UUID) (citation.ProcessingResult, error) {
		return s.svc.SetIntent(ctx, id, citation.UserIntent(req.Intent))
	})
}

func (s *Server) resetURL(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, s.svc.ResetProcessing)
}

func (s *Server) repairURL(w http.ResponseWriter, r *http.Request) {
	s.runOperation(w, r, s.svc.Repair)
}

// runOperation executes a guarded operation and maps the outcome: refused
// operations are 409, unknown URLs 404, infrastructure failures 500.
func (s *Server) runOperation(w http.ResponseWriter, r *http.Request, op operation) {
	id, ok := s.urlID(w, r)
	if !ok {
		return
	}
	result, err := op(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success && result.Error != "" {
		status = http.StatusConflict
	}
	writeJSON(s.logger, w, status, result)
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var results []batch.Result
	if len(req.URLIDs) > 0 {
		results = s.batch.Run(r.Context(), req.URLIDs)
	} else {
		var err error
		results, err = s.batch.RunPending(r.Context(), req.Limit)
		if err != nil {
			writeError(s.logger, w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"summary": batch.Summarize(results),
		"results": results,
	})
}

func (s *Server) scanIntegrity(w http.ResponseWriter, r *http.Request) {
	issues, err := s.svc.ScanIntegrity(r.Context())
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"issues": issues})
}

func (s *Server) urlID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "url_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid url id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, citation.ErrNotFound) {
		writeError(s.logger, w, http.StatusNotFound, "url not found")
		return
	}
	writeError(s.logger, w, http.StatusInternalServerError, err.Error())
}
