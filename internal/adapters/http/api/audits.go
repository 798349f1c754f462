package api

import (
	"fmt"
	"net/http"
	"strconv"

	service "github.com/founderbleed/bleed/internal/app"
	"github.com/founderbleed/bleed/internal/domain/model"
)

const (
	defaultListLimit = 100
	defaultPageSize  = 20
	idempotencyHdr   = "Idempotency-Key"
)

type createAuditRequest struct {
	service.AuditRequest
	Async bool `json:"async"`
}

type reconcileResponse struct {
	Audit   *model.Audit `json:"audit"`
	Matched int          `json:"matched"`
}

type listResponse struct {
	Audits []*model.Audit `json:"audits"`
}

// handlePutRates handles PUT /v1/rates.
func (s *Server) handlePutRates(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	var rates model.RateConfig
	if err := decodeJSON(w, r, &rates); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := s.deps.SaveRates(r.Context(), userID, rates); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

// handleGetRates handles GET /v1/rates.
func (s *Server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	rates, err := s.deps.GetRates(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

// handleCreateAudit handles POST /v1/audits. Synchronous audits answer 201,
// queued ones 202 and repeated idempotency keys 200.
func (s *Server) handleCreateAudit(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	var req createAuditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if !req.Async {
		a, err := s.deps.RunAudit(r.Context(), userID, req.AuditRequest)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/audits/"+a.ID)
		writeJSON(w, http.StatusCreated, a)
		return
	}

	a, duplicate, err := s.deps.SubmitAudit(r.Context(), userID, req.AuditRequest, r.Header.Get(idempotencyHdr))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/audits/"+a.ID)
	if duplicate {
		writeJSON(w, http.StatusOK, a)
		return
	}
	writeJSON(w, http.StatusAccepted, a)
}

// handleListAudits handles GET /v1/audits?limit=N.
func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > s.auditLimit {
			writeError(w, http.StatusBadRequest, "bad_request",
				fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, s.auditLimit))
			return
		}
		limit = n
	}
	audits, err := s.deps.ListAudits(r.Context(), userID, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if audits == nil {
		audits = []*model.Audit{}
	}
	writeJSON(w, http.StatusOK, listResponse{Audits: audits})
}

// handleGetAudit handles GET /v1/audits/{id}.
func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	a, err := s.deps.GetAudit(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleReconcile handles PATCH /v1/audits/{id}/events.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserFromContext(r.Context())
	var overrides []model.EventOverride
	if err := decodeJSON(w, r, &overrides); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	a, matched, err := s.deps.ReconcileAudit(r.Context(), userID, r.PathValue("id"), overrides)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Audit: a, Matched: matched})
}
