package ics

import (
	"time"

	"github.com/founderbleed/bleed/internal/domain/leave"
	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/internal/domain/types"
)

const busyStatusOutOfOffice = "OOF"

// ToCalendarEvents maps occurrences to classified calendar events with the
// default tier and vertical.
func ToCalendarEvents(occs []Occurrence) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(occs))
	for _, o := range occs {
		eventType := ""
		if o.BusyStatus == busyStatusOutOfOffice {
			eventType = leave.EventTypeOutOfOffice
		}
		res := leave.Classify(o.Summary, o.Description, o.AllDay, eventType)

		id := o.UID
		if o.RRule != "" || o.RecurrenceID != nil {
			id = o.UID + "/" + o.InstanceStart.UTC().Format(time.RFC3339)
		}
		out = append(out, model.CalendarEvent{
			ID:              id,
			Title:           o.Summary,
			Description:     o.Description,
			Start:           o.InstanceStart.UTC(),
			End:             o.InstanceEnd.UTC(),
			AllDay:          o.AllDay,
			EventType:       eventType,
			DurationMinutes: int(o.InstanceEnd.Sub(o.InstanceStart) / time.Minute),
			FinalTier:       types.DefaultTier,
			Vertical:        types.VerticalUniversal,
			IsLeave:         res.IsLeave,
			LeaveMethod:     string(res.Method),
			LeaveConfidence: string(res.Confidence),
		})
	}
	return out
}

// Import parses body, expands it over w and converts the result.
func Import(body []byte, w Window) ([]model.CalendarEvent, *Expansion, error) {
	feed, err := Parse(body)
	if err != nil {
		return nil, nil, err
	}
	exp, err := Expand(feed.Events, w)
	if err != nil {
		return nil, nil, err
	}
	return ToCalendarEvents(exp.Occurrences), exp, nil
}
