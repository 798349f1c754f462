package api

import (
	"fmt"
	"net/http"

	service "github.com/founderbleed/bleed/internal/app"
	"github.com/founderbleed/bleed/internal/domain/model"
)

type metricsRequest struct {
	Events    []model.CalendarEvent `json:"events"`
	Rates     *model.RateConfig     `json:"rates"`
	AuditDays int                   `json:"audit_days"`
}

// handleClassify handles POST /v1/classify.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var in service.ClassifyInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Classify(r.Context(), in))
}

// handleMetrics handles POST /v1/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var req metricsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Rates == nil {
		s.writeServiceError(w, r, fmt.Errorf("%w: rates is required", service.ErrInvalidInput))
		return
	}
	m, err := s.deps.ComputeMetrics(r.Context(), req.Events, *req.Rates, req.AuditDays)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
