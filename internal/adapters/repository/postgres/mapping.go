package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/founderbleed/bleed/internal/domain/model"
)

// auditRow is the column layout of the audits table.
type auditRow struct {
	ID          string
	UserID      string
	Status      string
	Source      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Days        int
	Events      []byte
	Rates       []byte
	Metrics     []byte
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func toAuditRow(a *model.Audit) (auditRow, error) {
	events := a.Events
	if events == nil {
		events = []model.CalendarEvent{}
	}
	ev, err := json.Marshal(events)
	if err != nil {
		return auditRow{}, fmt.Errorf("encode events: %w", err)
	}
	rates, err := json.Marshal(a.Rates)
	if err != nil {
		return auditRow{}, fmt.Errorf("encode rates: %w", err)
	}
	var metrics []byte
	if a.Metrics != nil {
		if metrics, err = json.Marshal(a.Metrics); err != nil {
			return auditRow{}, fmt.Errorf("encode metrics: %w", err)
		}
	}
	return auditRow{
		ID:          a.ID,
		UserID:      a.UserID,
		Status:      string(a.Status),
		Source:      a.Source,
		PeriodStart: a.PeriodStart,
		PeriodEnd:   a.PeriodEnd,
		Days:        a.Days,
		Events:      ev,
		Rates:       rates,
		Metrics:     metrics,
		Error:       a.Error,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}, nil
}

func (r auditRow) toAudit() (*model.Audit, error) {
	a := &model.Audit{
		ID:          r.ID,
		UserID:      r.UserID,
		Status:      model.AuditStatus(r.Status),
		Source:      r.Source,
		PeriodStart: r.PeriodStart.UTC(),
		PeriodEnd:   r.PeriodEnd.UTC(),
		Days:        r.Days,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if len(r.Events) > 0 {
		if err := json.Unmarshal(r.Events, &a.Events); err != nil {
			return nil, fmt.Errorf("decode events of %s: %w", r.ID, err)
		}
	}
	if len(r.Rates) > 0 {
		if err := json.Unmarshal(r.Rates, &a.Rates); err != nil {
			return nil, fmt.Errorf("decode rates of %s: %w", r.ID, err)
		}
	}
	if len(r.Metrics) > 0 && string(r.Metrics) != "null" {
		a.Metrics = &model.AuditMetrics{}
		if err := json.Unmarshal(r.Metrics, a.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of %s: %w", r.ID, err)
		}
	}
	return a, nil
}

func encodeRates(r model.RateConfig) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode rates: %w", err)
	}
	return b, nil
}

func decodeRates(b []byte) (model.RateConfig, error) {
	var r model.RateConfig
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("decode rates: %w", err)
	}
	return r, nil
}
