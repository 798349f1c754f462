package ics

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

const defaultMaxOccurrences = 5000

// Window bounds an expansion to occurrences starting in [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
	// MaxOccurrences caps each recurring event; 0 means 5000.
	MaxOccurrences int
}

// Occurrence is one concrete instance of a VEvent.
type Occurrence struct {
	VEvent
	InstanceStart time.Time
	InstanceEnd   time.Time
}

// Expansion lists occurrences ordered by start time.
type Expansion struct {
	Occurrences []Occurrence
	// Truncated holds the UIDs that hit the occurrence cap.
	Truncated []string
	// BadRules holds the UIDs whose RRULE could not be parsed.
	BadRules []string
}

// Expand turns parsed events into occurrences inside w. RRULE, EXDATE and
// RECURRENCE-ID overrides are honored.
func Expand(events []VEvent, w Window) (*Expansion, error) {
	if w.End.Before(w.Start) {
		return nil, ErrBadWindow
	}
	if w.MaxOccurrences <= 0 {
		w.MaxOccurrences = defaultMaxOccurrences
	}

	base := make(map[string][]VEvent)
	overrides := make(map[string][]VEvent)
	var uids []string
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, ok := base[ev.UID]; !ok {
			uids = append(uids, ev.UID)
		}
		base[ev.UID] = append(base[ev.UID], ev)
	}

	out := &Expansion{}
	for _, uid := range uids {
		for _, ev := range base[uid] {
			if ev.RRule == "" {
				if inWindow(ev.Start, w) {
					out.Occurrences = append(out.Occurrences, occurrence(ev, ev.Start, overrides[uid]))
				}
				continue
			}
			occ, capped, err := expandRecurring(ev, overrides[uid], w)
			if err != nil {
				out.BadRules = append(out.BadRules, uid)
				continue
			}
			if capped {
				out.Truncated = append(out.Truncated, uid)
			}
			out.Occurrences = append(out.Occurrences, occ...)
		}
	}

	sort.SliceStable(out.Occurrences, func(i, j int) bool {
		a, b := out.Occurrences[i], out.Occurrences[j]
		if !a.InstanceStart.Equal(b.InstanceStart) {
			return a.InstanceStart.Before(b.InstanceStart)
		}
		return a.UID < b.UID
	})
	return out, nil
}

func expandRecurring(ev VEvent, overrides []VEvent, w Window) ([]Occurrence, bool, error) {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, false, err
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	loc := ev.Start.Location()
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(loc))
	}

	times := set.Between(w.Start.In(loc), w.End.In(loc), true)
	capped := false
	if len(times) > w.MaxOccurrences {
		times = times[:w.MaxOccurrences]
		capped = true
	}

	out := make([]Occurrence, 0, len(times))
	for _, t := range times {
		if !t.Before(w.End) {
			continue
		}
		out = append(out, occurrence(ev, t, overrides))
	}
	return out, capped, nil
}

// occurrence builds the instance starting at start, swapping in an override
// whose RECURRENCE-ID matches.
func occurrence(ev VEvent, start time.Time, overrides []VEvent) Occurrence {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return Occurrence{VEvent: o, InstanceStart: o.Start, InstanceEnd: o.End}
		}
	}
	return Occurrence{VEvent: ev, InstanceStart: start, InstanceEnd: start.Add(ev.End.Sub(ev.Start))}
}

func inWindow(t time.Time, w Window) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
