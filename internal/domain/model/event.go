// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/founderbleed/bleed/internal/domain/types"
)

// CalendarEvent is one scheduled block of time pulled from a calendar
// provider. The metrics engine only reads DurationMinutes, FinalTier,
// Vertical and IsLeave; the rest is ingestion metadata.
type CalendarEvent struct {
	ID              string         `json:"id,omitempty"`
	Title           string         `json:"title,omitempty"`
	Description     string         `json:"description,omitempty"`
	Start           time.Time      `json:"start,omitempty"`
	End             time.Time      `json:"end,omitempty"`
	AllDay          bool           `json:"all_day,omitempty"`
	EventType       string         `json:"event_type,omitempty"` // provider signal, e.g. "outOfOffice"
	DurationMinutes int            `json:"duration_minutes"`
	FinalTier       types.Tier     `json:"final_tier,omitempty"`
	Vertical        types.Vertical `json:"vertical,omitempty"`
	IsLeave         bool           `json:"is_leave"`
	LeaveMethod     string         `json:"leave_method,omitempty"`
	LeaveConfidence string         `json:"leave_confidence,omitempty"`
}

// Hours returns the event length in hours.
func (e CalendarEvent) Hours() float64 {
	return float64(e.DurationMinutes) / 60
}

// EventOverride is a user edit applied to one event of an audit before its
// metrics are recomputed. Nil fields are left unchanged.
type EventOverride struct {
	EventID   string      `json:"event_id"`
	FinalTier *types.Tier `json:"final_tier,omitempty"`
	IsLeave   *bool       `json:"is_leave,omitempty"`
}

// Apply returns a copy of events with the overrides applied and the number of
// events that matched an override.
func Apply(events []CalendarEvent, overrides []EventOverride) ([]CalendarEvent, int) {
	byID := make(map[string]EventOverride, len(overrides))
	for _, o := range overrides {
		byID[o.EventID] = o
	}
	out := make([]CalendarEvent, len(events))
	matched := 0
	for i, ev := range events {
		if o, ok := byID[ev.ID]; ok && ev.ID != "" {
			if o.FinalTier != nil {
				ev.FinalTier = *o.FinalTier
			}
			if o.IsLeave != nil {
				ev.IsLeave = *o.IsLeave
				ev.LeaveMethod = "manual"
				ev.LeaveConfidence = "high"
			}
			matched++
		}
		out[i] = ev
	}
	return out, matched
}
