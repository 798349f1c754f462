package service

import (
	"fmt"
	"time"

	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/internal/domain/types"
)

// normalizeEvents validates caller supplied events and returns copies with
// canonical tier and vertical names. A zero duration is derived from the
// start and end times when both are set.
func (s *Service) normalizeEvents(events []model.CalendarEvent) ([]model.CalendarEvent, error) {
	if len(events) > s.maxEvents {
		return nil, fmt.Errorf("%w: %d events exceeds the limit of %d", ErrInvalidInput, len(events), s.maxEvents)
	}
	out := make([]model.CalendarEvent, len(events))
	for i, e := range events {
		tier, err := types.ParseTier(string(e.FinalTier))
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %w", ErrInvalidInput, i, err)
		}
		vertical, err := types.ParseVertical(string(e.Vertical))
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %w", ErrInvalidInput, i, err)
		}
		if e.DurationMinutes < 0 {
			return nil, fmt.Errorf("%w: event %d: negative duration", ErrInvalidInput, i)
		}
		if e.DurationMinutes == 0 && !e.Start.IsZero() && e.End.After(e.Start) {
			e.DurationMinutes = int(e.End.Sub(e.Start) / time.Minute)
		}
		e.FinalTier = tier
		e.Vertical = vertical
		out[i] = e
	}
	return out, nil
}

func validateRates(r model.RateConfig) error {
	if field := r.Missing(); field != "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if field := r.Negative(); field != "" {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, field)
	}
	return nil
}

// validatePeriod returns the number of days in [start, end).
func (s *Service) validatePeriod(start, end time.Time) (int, error) {
	if start.IsZero() || end.IsZero() {
		return 0, fmt.Errorf("%w: period_start and period_end are required", ErrInvalidInput)
	}
	if !end.After(start) {
		return 0, fmt.Errorf("%w: period_end must be after period_start", ErrInvalidInput)
	}
	days := model.PeriodDays(start, end)
	if days > s.maxAuditDays {
		return 0, fmt.Errorf("%w: period of %d days exceeds the limit of %d", ErrInvalidInput, days, s.maxAuditDays)
	}
	return days, nil
}

func validateOverrides(overrides []model.EventOverride) ([]model.EventOverride, error) {
	if len(overrides) == 0 {
		return nil, fmt.Errorf("%w: no overrides given", ErrInvalidInput)
	}
	out := make([]model.EventOverride, len(overrides))
	for i, o := range overrides {
		if o.EventID == "" {
			return nil, fmt.Errorf("%w: override %d: event_id is required", ErrInvalidInput, i)
		}
		if o.FinalTier != nil {
			tier, err := types.ParseTier(string(*o.FinalTier))
			if err != nil {
				return nil, fmt.Errorf("%w: override %d: %w", ErrInvalidInput, i, err)
			}
			o.FinalTier = &tier
		}
		out[i] = o
	}
	return out, nil
}
