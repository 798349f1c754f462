package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/internal/domain/types"
)

func TestApply(t *testing.T) {
	Convey("Given events and reconciliation overrides", t, func() {
		events := []model.CalendarEvent{
			{ID: "e1", FinalTier: types.TierSenior, DurationMinutes: 60},
			{ID: "e2", FinalTier: types.TierJunior, DurationMinutes: 30, IsLeave: true},
			{ID: "", FinalTier: types.TierEA},
		}
		founder := types.TierFounder
		notLeave := false

		out, matched := model.Apply(events, []model.EventOverride{
			{EventID: "e1", FinalTier: &founder},
			{EventID: "e2", IsLeave: &notLeave},
			{EventID: "missing", FinalTier: &founder},
		})

		Convey("Then matching events change and the input is untouched", func() {
			So(matched, ShouldEqual, 2)
			So(out[0].FinalTier, ShouldEqual, types.TierFounder)
			So(out[1].IsLeave, ShouldBeFalse)
			So(out[1].LeaveMethod, ShouldEqual, "manual")
			So(out[1].FinalTier, ShouldEqual, types.TierJunior)
			So(out[2].FinalTier, ShouldEqual, types.TierEA)
			So(events[0].FinalTier, ShouldEqual, types.TierSenior)
			So(events[1].IsLeave, ShouldBeTrue)
		})
	})
}

func TestPeriodDays(t *testing.T) {
	Convey("Given audit periods", t, func() {
		start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		So(model.PeriodDays(start, start.AddDate(0, 0, 7)), ShouldEqual, 7)
		So(model.PeriodDays(start, start.Add(36*time.Hour)), ShouldEqual, 2)
		So(model.PeriodDays(start, start), ShouldEqual, 0)
		So(model.PeriodDays(start, start.Add(-time.Hour)), ShouldEqual, 0)
	})
}

func TestRateConfig(t *testing.T) {
	Convey("Given rate configurations", t, func() {
		r := model.RateConfig{
			EquityPercentage:   decimal.NewNullDecimal(decimal.NewFromInt(5)),
			CompanyValuation:   decimal.NewNullDecimal(decimal.NewFromInt(1000000)),
			VestingPeriodYears: decimal.NewNullDecimal(decimal.NewFromInt(4)),
		}

		Convey("Then equity needs every field and a positive vesting period", func() {
			So(r.HasEquity(), ShouldBeTrue)
			r.VestingPeriodYears = decimal.NewNullDecimal(decimal.Zero)
			So(r.HasEquity(), ShouldBeFalse)
			r.VestingPeriodYears = decimal.NullDecimal{}
			So(r.HasEquity(), ShouldBeFalse)
		})

		Convey("Then negative amounts are reported by name", func() {
			So(r.Negative(), ShouldBeEmpty)
			r.EARate = decimal.NewFromInt(-1)
			So(r.Negative(), ShouldEqual, "ea_rate")
			r.SalaryAnnual = decimal.NewNullDecimal(decimal.NewFromInt(-5))
			So(r.Negative(), ShouldEqual, "salary_annual")
		})

		Convey("Then the money helpers wrap floats", func() {
			v := 12.5
			So(model.OptionalMoney(&v).Valid, ShouldBeTrue)
			So(model.OptionalMoney(nil).Valid, ShouldBeFalse)
			So(model.Money(3).Equal(decimal.NewFromInt(3)), ShouldBeTrue)
		})

		Convey("When decoding JSON that lacks a required rate", func() {
			var got model.RateConfig
			err := json.Unmarshal([]byte(`{"senior_engineering_rate":100000,"senior_business_rate":80000,"junior_engineering_rate":40000,"junior_business_rate":50000}`), &got)

			Convey("Then the absent rate is reported by name", func() {
				So(err, ShouldBeNil)
				So(got.Missing(), ShouldEqual, "ea_rate")
				So(got.SeniorEngineeringRate.IntPart(), ShouldEqual, 100000)
			})
		})

		Convey("When a required rate is null", func() {
			var got model.RateConfig
			err := json.Unmarshal([]byte(`{"senior_engineering_rate":null,"senior_business_rate":1,"junior_engineering_rate":1,"junior_business_rate":1,"ea_rate":1}`), &got)
			So(err, ShouldBeNil)
			So(got.Missing(), ShouldEqual, "senior_engineering_rate")
		})

		Convey("When decoding a complete configuration", func() {
			var got model.RateConfig
			err := json.Unmarshal([]byte(`{"salary_annual":208000,"senior_engineering_rate":1,"senior_business_rate":2,"junior_engineering_rate":3,"junior_business_rate":4,"ea_rate":0}`), &got)

			Convey("Then nothing is missing and zero is a valid rate", func() {
				So(err, ShouldBeNil)
				So(got.Missing(), ShouldBeEmpty)
				So(got.EARate.IsZero(), ShouldBeTrue)
				So(got.JuniorBusinessRate.IntPart(), ShouldEqual, 4)
				So(got.SalaryAnnual.Valid, ShouldBeTrue)
				So(got.EquityPercentage.Valid, ShouldBeFalse)
			})
		})

		Convey("Then configurations built in code are complete", func() {
			So(r.Missing(), ShouldBeEmpty)
		})
	})
}
