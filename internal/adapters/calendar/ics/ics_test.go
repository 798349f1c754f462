package ics_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/founderbleed/bleed/internal/adapters/calendar/ics"
	"github.com/founderbleed/bleed/internal/domain/leave"
	"github.com/founderbleed/bleed/internal/domain/types"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//bleed//test//EN
BEGIN:VEVENT
UID:standup
DTSTART:20250303T090000Z
DTEND:20250303T093000Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20250305T090000Z
SUMMARY:Standup
END:VEVENT
BEGIN:VEVENT
UID:standup
RECURRENCE-ID:20250306T090000Z
DTSTART:20250306T100000Z
DTEND:20250306T110000Z
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:dentist
DTSTART:20250304T130000Z
DTEND:20250304T170000Z
SUMMARY:Dentist
X-MICROSOFT-CDO-BUSYSTATUS:OOF
END:VEVENT
BEGIN:VEVENT
UID:pto
DTSTART;VALUE=DATE:20250307
DTEND;VALUE=DATE:20250308
SUMMARY:PTO
END:VEVENT
BEGIN:VEVENT
SUMMARY:No uid
DTSTART:20250303T120000Z
END:VEVENT
BEGIN:VEVENT
UID:later
DTSTART:20250401T090000Z
DTEND:20250401T100000Z
SUMMARY:Later
END:VEVENT
END:VCALENDAR
`

func week() ics.Window {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	return ics.Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func TestParse(t *testing.T) {
	Convey("Given an iCalendar feed", t, func() {
		f, err := ics.Parse([]byte(feed))
		So(err, ShouldBeNil)

		Convey("Then events without a UID are skipped", func() {
			So(f.Skipped, ShouldEqual, 1)
			So(f.Events, ShouldHaveLength, 5)
		})

		Convey("Then recurrence data is captured", func() {
			base := f.Events[0]
			So(base.UID, ShouldEqual, "standup")
			So(base.RRule, ShouldEqual, "FREQ=DAILY;COUNT=5")
			So(base.ExDates, ShouldHaveLength, 1)
			So(f.Events[1].RecurrenceID, ShouldNotBeNil)
			So(f.Events[2].BusyStatus, ShouldEqual, "OOF")
			So(f.Events[3].AllDay, ShouldBeTrue)
			So(f.Events[3].End.Sub(f.Events[3].Start), ShouldEqual, 24*time.Hour)
		})
	})

	Convey("Given bad input", t, func() {
		_, err := ics.Parse([]byte("   "))
		So(errors.Is(err, ics.ErrEmptyFeed), ShouldBeTrue)

		_, err = ics.Parse([]byte("BEGIN:VEVENT\nEND:VEVENT\n"))
		So(errors.Is(err, ics.ErrBadFeed), ShouldBeTrue)
	})
}

func TestExpand(t *testing.T) {
	Convey("Given parsed events and a one week window", t, func() {
		f, err := ics.Parse([]byte(feed))
		So(err, ShouldBeNil)

		exp, err := ics.Expand(f.Events, week())
		So(err, ShouldBeNil)

		Convey("Then recurrences honor EXDATE and overrides", func() {
			var standups []ics.Occurrence
			for _, o := range exp.Occurrences {
				if o.UID == "standup" {
					standups = append(standups, o)
				}
			}
			So(standups, ShouldHaveLength, 4)
			So(standups[0].InstanceStart.Equal(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)), ShouldBeTrue)
			So(standups[1].InstanceStart.Day(), ShouldEqual, 4)
			So(standups[2].Summary, ShouldEqual, "Standup (moved)")
			So(standups[2].InstanceEnd.Sub(standups[2].InstanceStart), ShouldEqual, time.Hour)
			So(standups[3].InstanceStart.Day(), ShouldEqual, 7)
		})

		Convey("Then events outside the window are dropped", func() {
			for _, o := range exp.Occurrences {
				So(o.UID, ShouldNotEqual, "later")
			}
			So(exp.Occurrences, ShouldHaveLength, 6)
			So(exp.Truncated, ShouldBeEmpty)
		})

		Convey("When the cap is lower than the occurrences", func() {
			w := week()
			w.MaxOccurrences = 2
			exp, err := ics.Expand(f.Events, w)
			So(err, ShouldBeNil)
			So(exp.Truncated, ShouldResemble, []string{"standup"})
		})
	})

	Convey("Given an unparseable recurrence rule", t, func() {
		body := strings.Replace(feed, "FREQ=DAILY;COUNT=5", "FREQ=SOMETIMES", 1)
		f, err := ics.Parse([]byte(body))
		So(err, ShouldBeNil)
		exp, err := ics.Expand(f.Events, week())
		So(err, ShouldBeNil)
		So(exp.BadRules, ShouldContain, "standup")
	})

	Convey("Given an inverted window", t, func() {
		w := week()
		w.Start, w.End = w.End, w.Start
		_, err := ics.Expand(nil, w)
		So(errors.Is(err, ics.ErrBadWindow), ShouldBeTrue)
	})
}

func TestImport(t *testing.T) {
	Convey("Given a feed imported over a week", t, func() {
		events, _, err := ics.Import([]byte(feed), week())
		So(err, ShouldBeNil)

		byTitle := map[string]int{}
		for i, e := range events {
			byTitle[e.Title] = i
		}

		Convey("Then events carry default tier, vertical and duration", func() {
			first := events[0]
			So(first.ID, ShouldEqual, "standup/2025-03-03T09:00:00Z")
			So(first.DurationMinutes, ShouldEqual, 30)
			So(first.FinalTier, ShouldEqual, types.TierSenior)
			So(first.Vertical, ShouldEqual, types.VerticalUniversal)
			So(first.IsLeave, ShouldBeFalse)
		})

		Convey("Then the OOF busy status is the provider leave signal", func() {
			e := events[byTitle["Dentist"]]
			So(e.IsLeave, ShouldBeTrue)
			So(e.EventType, ShouldEqual, leave.EventTypeOutOfOffice)
			So(e.LeaveMethod, ShouldEqual, string(leave.MethodProviderEventType))
			So(e.ID, ShouldEqual, "dentist")
			So(e.DurationMinutes, ShouldEqual, 240)
		})

		Convey("Then all-day PTO is leave by title", func() {
			e := events[byTitle["PTO"]]
			So(e.IsLeave, ShouldBeTrue)
			So(e.AllDay, ShouldBeTrue)
			So(e.LeaveMethod, ShouldEqual, string(leave.MethodKeywordTitle))
			So(e.DurationMinutes, ShouldEqual, 24*60)
		})
	})
}
