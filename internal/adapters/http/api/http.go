// Package api exposes the audit service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	service "github.com/founderbleed/bleed/internal/app"
	"github.com/founderbleed/bleed/internal/domain/leave"
	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/pkg/logger"
	"github.com/founderbleed/bleed/pkg/token"
)

const (
	maxJSONBody = 4 << 20
	maxICSBody  = 8 << 20
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	StatsProvider

	Classify(ctx context.Context, in service.ClassifyInput) leave.Result
	ComputeMetrics(ctx context.Context, events []model.CalendarEvent, rates model.RateConfig, auditDays int) (model.AuditMetrics, error)

	RunAudit(ctx context.Context, userID string, req service.AuditRequest) (*model.Audit, error)
	SubmitAudit(ctx context.Context, userID string, req service.AuditRequest, idempotencyKey string) (*model.Audit, bool, error)
	GetAudit(ctx context.Context, userID, id string) (*model.Audit, error)
	ListAudits(ctx context.Context, userID string, limit int) ([]*model.Audit, error)
	ReconcileAudit(ctx context.Context, userID, id string, overrides []model.EventOverride) (*model.Audit, int, error)

	SaveRates(ctx context.Context, userID string, rates model.RateConfig) error
	GetRates(ctx context.Context, userID string) (model.RateConfig, error)

	ImportICS(ctx context.Context, body []byte, start, end time.Time) (*service.ImportResult, error)
	GoogleAuthURL(ctx context.Context, userID string) (string, error)
	ConnectGoogle(ctx context.Context, code, state string) (*model.CalendarConnection, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps       Dependencies
	tokens     *token.Manager
	limiter    RateLimiter
	limit      int
	window     time.Duration
	auditLimit int
	logger     logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:       deps,
		window:     time.Minute,
		auditLimit: defaultListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	health := NewHealthHandler()

	mux.HandleFunc("GET /healthz", MetricsMiddleware(health.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", health.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.handleStats, "stats"))

	s.public(mux, "POST /v1/classify", "classify", s.handleClassify)
	s.public(mux, "POST /v1/metrics", "metrics", s.handleMetrics)
	s.public(mux, "GET /v1/connect/google/callback", "connect_google_callback", s.handleGoogleCallback)

	s.authed(mux, "PUT /v1/rates", "rates", s.handlePutRates)
	s.authed(mux, "GET /v1/rates", "rates", s.handleGetRates)
	s.authed(mux, "POST /v1/audits", "audits", s.handleCreateAudit)
	s.authed(mux, "GET /v1/audits", "audits", s.handleListAudits)
	s.authed(mux, "GET /v1/audits/{id}", "audit", s.handleGetAudit)
	s.authed(mux, "PATCH /v1/audits/{id}/events", "audit_events", s.handleReconcile)
	s.authed(mux, "POST /v1/calendar/ics", "calendar_ics", s.handleImportICS)
	s.authed(mux, "GET /v1/connect/google", "connect_google", s.handleGoogleConnect)
}

func (s *Server) public(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, MetricsMiddleware(s.withRateLimit(endpoint, h), endpoint))
}

func (s *Server) authed(mux *http.ServeMux, pattern, endpoint string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, MetricsMiddleware(s.requireAuth(s.withRateLimit(endpoint, h)), endpoint))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service sentinels to status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrNotConnected):
		writeError(w, http.StatusBadRequest, "not_connected", err)
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, service.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_error", err)
	case errors.Is(err, service.ErrGoogleNotConfigured), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %w", ErrBadRequest, err)
	}
	return nil
}

// parseTimeParam accepts RFC 3339 timestamps and YYYY-MM-DD dates (UTC).
func parseTimeParam(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrBadRequest, name)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339 or YYYY-MM-DD", ErrBadRequest, name)
}
