package leave_test

import (
	"testing"

	"github.com/founderbleed/bleed/internal/domain/leave"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("Given calendar event text", t, func() {
		Convey("When the provider marks the event out of office", func() {
			res := leave.Classify("Offsite prep", "", false, leave.EventTypeOutOfOffice)

			Convey("Then the provider signal wins without any keyword", func() {
				So(res.IsLeave, ShouldBeTrue)
				So(res.Confidence, ShouldEqual, leave.ConfidenceHigh)
				So(res.Method, ShouldEqual, leave.MethodProviderEventType)
				So(res.Keyword, ShouldBeEmpty)
			})
		})

		Convey("When the title mentions PTO", func() {
			res := leave.Classify("Alex PTO", "sick leave coverage plan", true, "default")

			Convey("Then the title rule takes precedence over the description", func() {
				So(res.IsLeave, ShouldBeTrue)
				So(res.Method, ShouldEqual, leave.MethodKeywordTitle)
				So(res.Confidence, ShouldEqual, leave.ConfidenceHigh)
				So(res.Keyword, ShouldEqual, "pto")
			})
		})

		Convey("When only the description carries a keyword", func() {
			res := leave.Classify("Blocked", "Bereavement, back Monday", false, "")

			Convey("Then it is a medium confidence keyword match", func() {
				So(res.IsLeave, ShouldBeTrue)
				So(res.Method, ShouldEqual, leave.MethodKeywordMatch)
				So(res.Confidence, ShouldEqual, leave.ConfidenceMedium)
				So(res.Keyword, ShouldEqual, "bereavement")
				So(res.Category, ShouldEqual, leave.CategoryLeaveTypes)
			})
		})

		Convey("When the title uses an out of office abbreviation", func() {
			res := leave.Classify("OOO - dentist", "", false, "")

			So(res.IsLeave, ShouldBeTrue)
			So(res.Method, ShouldEqual, leave.MethodKeywordMatch)
			So(res.Category, ShouldEqual, leave.CategoryOutOfOffice)
		})

		Convey("When nothing matches", func() {
			res := leave.Classify("Board meeting", "Q3 numbers", false, "")

			Convey("Then it is not leave with low confidence", func() {
				So(res, ShouldResemble, leave.Result{Method: leave.MethodNone, Confidence: leave.ConfidenceLow})
			})
		})

		Convey("When every input is empty", func() {
			res := leave.Classify("", "", false, "")
			So(res.IsLeave, ShouldBeFalse)
			So(res.Method, ShouldEqual, leave.MethodNone)
		})

		Convey("When the all-day flag differs", func() {
			So(leave.Classify("Standup", "", true, ""), ShouldResemble, leave.Classify("Standup", "", false, ""))
			So(leave.Classify("Vacation", "", true, ""), ShouldResemble, leave.Classify("Vacation", "", false, ""))
			So(leave.Classify("Blocked", "jury duty", false, ""), ShouldResemble, leave.Classify("Blocked", "jury duty", true, ""))
			So(leave.Classify("Offsite", "", true, leave.EventTypeOutOfOffice).IsLeave, ShouldBeTrue)
		})
	})
}

func TestKeywords(t *testing.T) {
	Convey("Given the keyword table", t, func() {
		kw := leave.Keywords()

		Convey("Then every category is present", func() {
			So(kw, ShouldContainKey, leave.CategoryVacation)
			So(kw, ShouldContainKey, leave.CategoryOutOfOffice)
			So(kw, ShouldContainKey, leave.CategoryLeaveTypes)
			So(kw, ShouldContainKey, leave.CategoryBlockedTime)
			So(kw[leave.CategoryBlockedTime], ShouldContain, "day off")
		})

		Convey("Then mutating the copy does not leak", func() {
			kw[leave.CategoryVacation][0] = "mutated"
			So(leave.Keywords()[leave.CategoryVacation][0], ShouldEqual, "vacation")
		})
	})
}
