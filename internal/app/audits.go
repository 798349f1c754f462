package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	eventqueue "github.com/founderbleed/bleed/internal/adapters/mq/queue"
	"github.com/founderbleed/bleed/internal/adapters/repository"
	"github.com/founderbleed/bleed/internal/domain/leave"
	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/pkg/logger"
	"github.com/founderbleed/bleed/pkg/metrics"
)

// Audit sources.
const (
	SourceRequest = "request"
	SourceGoogle  = "google"
)

// ClassifyInput is the text and provider data of one calendar event.
type ClassifyInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IsAllDay    bool   `json:"is_all_day"`
	EventType   string `json:"event_type"`
}

// AuditRequest describes an audit to run. Rates, when nil, are the user's
// saved rates. Events are ignored for the google source.
type AuditRequest struct {
	Source      string                `json:"source,omitempty"`
	PeriodStart time.Time             `json:"period_start"`
	PeriodEnd   time.Time             `json:"period_end"`
	Events      []model.CalendarEvent `json:"events,omitempty"`
	Rates       *model.RateConfig     `json:"rates,omitempty"`
}

// Classify runs the leave classifier on one event.
func (s *Service) Classify(_ context.Context, in ClassifyInput) leave.Result {
	res := leave.Classify(in.Title, in.Description, in.IsAllDay, in.EventType)
	metrics.RecordEventClassified(string(res.Method), res.IsLeave)
	return res
}

// ComputeMetrics validates its inputs and runs the metrics engine without
// storing anything.
func (s *Service) ComputeMetrics(_ context.Context, events []model.CalendarEvent, rates model.RateConfig, auditDays int) (model.AuditMetrics, error) {
	if auditDays > s.maxAuditDays {
		return model.AuditMetrics{}, fmt.Errorf("%w: audit_days exceeds the limit of %d", ErrInvalidInput, s.maxAuditDays)
	}
	if err := validateRates(rates); err != nil {
		return model.AuditMetrics{}, err
	}
	normalized, err := s.normalizeEvents(events)
	if err != nil {
		return model.AuditMetrics{}, err
	}

	start := time.Now()
	m := s.engine.Compute(normalized, rates, auditDays)
	metrics.RecordAuditComputed("stateless", time.Since(start))
	return m, nil
}

// RunAudit computes an audit synchronously and stores the result.
func (s *Service) RunAudit(ctx context.Context, userID string, req AuditRequest) (*model.Audit, error) {
	return s.runAudit(ctx, userID, req, "sync")
}

func (s *Service) runAudit(ctx context.Context, userID string, req AuditRequest, mode string) (*model.Audit, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	a, err := s.prepare(ctx, store, userID, req)
	if err != nil {
		return nil, err
	}
	if err := s.complete(ctx, store, a, mode); err != nil {
		return a, err
	}
	return a, nil
}

// SubmitAudit stores a pending audit and queues it for a worker. A repeated
// idempotency key from the same user returns the first audit and true.
func (s *Service) SubmitAudit(ctx context.Context, userID string, req AuditRequest, idempotencyKey string) (*model.Audit, bool, error) {
	store, q, err := s.components()
	if err != nil {
		return nil, false, err
	}
	a, err := s.prepare(ctx, store, userID, req)
	if err != nil {
		return nil, false, err
	}

	key := ""
	if idempotencyKey != "" {
		key = userID + "\x00" + idempotencyKey
		if existing, seen := s.deduper.Claim(ctx, key, a.ID); seen {
			metrics.RecordAuditDuplicate()
			prev, err := store.GetAudit(ctx, existing)
			if err != nil {
				return nil, true, fmt.Errorf("%w: submission %q is still being accepted", ErrConflict, idempotencyKey)
			}
			return prev, true, nil
		}
	}
	release := func() {
		if key != "" {
			s.deduper.Release(ctx, key)
		}
	}

	if err := store.SaveAudit(ctx, a); err != nil {
		release()
		return nil, false, fmt.Errorf("save audit: %w", err)
	}

	if err := q.Enqueue(ctx, model.AuditJob{AuditID: a.ID, UserID: userID}); err != nil {
		release()
		a.Status = model.AuditFailed
		a.Error = err.Error()
		if saveErr := store.SaveAudit(ctx, a); saveErr != nil {
			s.logger.Error(ctx, "failed to mark rejected audit", logger.String("audit_id", a.ID), logger.Error(saveErr))
		}
		metrics.RecordAuditFailed()
		switch {
		case errors.Is(err, eventqueue.ErrFull):
			return nil, false, ErrBackpressure
		case errors.Is(err, eventqueue.ErrClosed):
			return nil, false, ErrNotStarted
		}
		return nil, false, err
	}

	s.logger.Debug(ctx, "audit queued", logger.String("audit_id", a.ID), logger.String("user_id", userID))
	return a, false, nil
}

// ProcessAudit computes a queued audit. It is called by the worker pool.
func (s *Service) ProcessAudit(ctx context.Context, job model.AuditJob) error {
	store, _, err := s.components()
	if err != nil {
		return err
	}
	a, err := store.GetAudit(ctx, job.AuditID)
	if err != nil {
		return fmt.Errorf("load audit %s: %w", job.AuditID, err)
	}
	if a.Status != model.AuditPending {
		return nil
	}
	return s.complete(ctx, store, a, "async")
}

// GetAudit returns one of the user's audits.
func (s *Service) GetAudit(ctx context.Context, userID, id string) (*model.Audit, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	a, err := store.GetAudit(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(err, "audit "+id)
		}
		return nil, err
	}
	if a.UserID != userID {
		return nil, notFound(repository.ErrNotFound, "audit "+id)
	}
	return a, nil
}

// ListAudits returns the user's most recent audits.
func (s *Service) ListAudits(ctx context.Context, userID string, limit int) ([]*model.Audit, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, err
	}
	audits, err := store.ListAudits(ctx, userID, limit)
	if errors.Is(err, repository.ErrInvalidLimit) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return audits, err
}

// ReconcileAudit applies user corrections to a completed audit and
// recomputes its metrics with the rates it was run with.
func (s *Service) ReconcileAudit(ctx context.Context, userID, id string, overrides []model.EventOverride) (*model.Audit, int, error) {
	overrides, err := validateOverrides(overrides)
	if err != nil {
		return nil, 0, err
	}
	a, err := s.GetAudit(ctx, userID, id)
	if err != nil {
		return nil, 0, err
	}
	if a.Status != model.AuditCompleted {
		return nil, 0, fmt.Errorf("%w: audit %s is %s", ErrConflict, id, a.Status)
	}

	events, matched := model.Apply(a.Events, overrides)
	if matched == 0 {
		return nil, 0, fmt.Errorf("%w: no override matched an event of audit %s", ErrInvalidInput, id)
	}

	start := time.Now()
	m := s.engine.Compute(events, a.Rates, a.Days)
	metrics.RecordAuditComputed("reconcile", time.Since(start))

	a.Events = events
	a.Metrics = &m
	store, _, err := s.components()
	if err != nil {
		return nil, 0, err
	}
	if err := store.SaveAudit(ctx, a); err != nil {
		return nil, 0, fmt.Errorf("save audit: %w", err)
	}
	s.logger.Info(ctx, "audit reconciled", logger.String("audit_id", id), logger.Int("overrides", matched))
	return a, matched, nil
}

// SaveRates stores the user's rate configuration.
func (s *Service) SaveRates(ctx context.Context, userID string, rates model.RateConfig) error {
	if err := validateRates(rates); err != nil {
		return err
	}
	store, _, err := s.components()
	if err != nil {
		return err
	}
	return store.SaveRates(ctx, userID, rates)
}

// GetRates returns the user's saved rate configuration.
func (s *Service) GetRates(ctx context.Context, userID string) (model.RateConfig, error) {
	store, _, err := s.components()
	if err != nil {
		return model.RateConfig{}, err
	}
	r, err := store.GetRates(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.RateConfig{}, notFound(err, "rates")
	}
	return r, err
}

// prepare validates req and returns a pending audit with resolved rates.
func (s *Service) prepare(ctx context.Context, store repository.Store, userID string, req AuditRequest) (*model.Audit, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrUnauthorized)
	}
	days, err := s.validatePeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}

	a := &model.Audit{
		ID:          s.newID(),
		UserID:      userID,
		Status:      model.AuditPending,
		Source:      req.Source,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Days:        days,
	}

	switch req.Source {
	case "", SourceRequest:
		a.Source = SourceRequest
		if a.Events, err = s.normalizeEvents(req.Events); err != nil {
			return nil, err
		}
	case SourceGoogle:
		if s.google == nil || !s.google.Configured() {
			return nil, ErrGoogleNotConfigured
		}
		if _, err := store.GetConnection(ctx, userID, SourceGoogle); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNotConnected
			}
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidInput, req.Source)
	}

	if req.Rates != nil {
		if err := validateRates(*req.Rates); err != nil {
			return nil, err
		}
		a.Rates = *req.Rates
	} else {
		r, err := store.GetRates(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: no rates given and none saved", ErrInvalidInput)
			}
			return nil, err
		}
		a.Rates = r
	}
	return a, nil
}

// complete fetches provider events when needed, computes the metrics and
// stores the audit as completed or failed.
func (s *Service) complete(ctx context.Context, store repository.Store, a *model.Audit, mode string) error {
	start := time.Now()

	if a.Source == SourceGoogle {
		events, err := s.fetchGoogleEvents(ctx, store, a.UserID, a.PeriodStart, a.PeriodEnd)
		if err != nil {
			return s.fail(ctx, store, a, err)
		}
		if len(events) > s.maxEvents {
			return s.fail(ctx, store, a, fmt.Errorf("%w: calendar returned %d events, limit is %d", ErrInvalidInput, len(events), s.maxEvents))
		}
		a.Events = events
	}

	m := s.engine.Compute(a.Events, a.Rates, a.Days)
	a.Metrics = &m
	a.Status = model.AuditCompleted
	a.Error = ""
	if err := store.SaveAudit(ctx, a); err != nil {
		return fmt.Errorf("save audit %s: %w", a.ID, err)
	}

	metrics.RecordAuditComputed(mode, time.Since(start))
	s.logger.Info(ctx, "audit completed",
		logger.String("audit_id", a.ID),
		logger.String("mode", mode),
		logger.Int("events", len(a.Events)),
		logger.Float64("total_hours", m.TotalHours),
	)
	return nil
}

func (s *Service) fail(ctx context.Context, store repository.Store, a *model.Audit, cause error) error {
	metrics.RecordAuditFailed()
	a.Status = model.AuditFailed
	a.Error = cause.Error()
	if err := store.SaveAudit(ctx, a); err != nil {
		s.logger.Error(ctx, "failed to store failed audit", logger.String("audit_id", a.ID), logger.Error(err))
	}
	return cause
}
