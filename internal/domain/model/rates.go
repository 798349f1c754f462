package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// HoursPerYear converts annual figures to hourly ones (52 weeks x 40 hours).
const HoursPerYear = 2080

// RateConfig is a snapshot of one user's cost parameters. All amounts are
// annual.
type RateConfig struct {
	SalaryAnnual       decimal.NullDecimal `json:"salary_annual"`
	EquityPercentage   decimal.NullDecimal `json:"equity_percentage"`
	CompanyValuation   decimal.NullDecimal `json:"company_valuation"`
	VestingPeriodYears decimal.NullDecimal `json:"vesting_period_years"`

	SeniorEngineeringRate decimal.Decimal `json:"senior_engineering_rate"`
	SeniorBusinessRate    decimal.Decimal `json:"senior_business_rate"`
	JuniorEngineeringRate decimal.Decimal `json:"junior_engineering_rate"`
	JuniorBusinessRate    decimal.Decimal `json:"junior_business_rate"`
	EARate                decimal.Decimal `json:"ea_rate"`

	// missing names the first required rate absent from decoded JSON.
	missing string
}

// UnmarshalJSON decodes a rate configuration and remembers the first
// required rate that was absent or null. See Missing.
func (r *RateConfig) UnmarshalJSON(b []byte) error {
	var raw struct {
		SalaryAnnual       decimal.NullDecimal `json:"salary_annual"`
		EquityPercentage   decimal.NullDecimal `json:"equity_percentage"`
		CompanyValuation   decimal.NullDecimal `json:"company_valuation"`
		VestingPeriodYears decimal.NullDecimal `json:"vesting_period_years"`

		SeniorEngineeringRate *decimal.Decimal `json:"senior_engineering_rate"`
		SeniorBusinessRate    *decimal.Decimal `json:"senior_business_rate"`
		JuniorEngineeringRate *decimal.Decimal `json:"junior_engineering_rate"`
		JuniorBusinessRate    *decimal.Decimal `json:"junior_business_rate"`
		EARate                *decimal.Decimal `json:"ea_rate"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*r = RateConfig{
		SalaryAnnual:       raw.SalaryAnnual,
		EquityPercentage:   raw.EquityPercentage,
		CompanyValuation:   raw.CompanyValuation,
		VestingPeriodYears: raw.VestingPeriodYears,
	}
	required := []struct {
		name string
		src  *decimal.Decimal
		dst  *decimal.Decimal
	}{
		{"senior_engineering_rate", raw.SeniorEngineeringRate, &r.SeniorEngineeringRate},
		{"senior_business_rate", raw.SeniorBusinessRate, &r.SeniorBusinessRate},
		{"junior_engineering_rate", raw.JuniorEngineeringRate, &r.JuniorEngineeringRate},
		{"junior_business_rate", raw.JuniorBusinessRate, &r.JuniorBusinessRate},
		{"ea_rate", raw.EARate, &r.EARate},
	}
	for _, q := range required {
		if q.src == nil {
			if r.missing == "" {
				r.missing = q.name
			}
			continue
		}
		*q.dst = *q.src
	}
	return nil
}

// Missing returns the name of the first required rate that was absent when
// the configuration was decoded from JSON, or "". Values built in code are
// always complete.
func (r RateConfig) Missing() string { return r.missing }

// HasEquity reports whether every equity input is present and the vesting
// period is positive.
func (r RateConfig) HasEquity() bool {
	return r.EquityPercentage.Valid &&
		r.CompanyValuation.Valid &&
		r.VestingPeriodYears.Valid &&
		r.VestingPeriodYears.Decimal.IsPositive()
}

// Negative returns the name of the first amount below zero, or "".
func (r RateConfig) Negative() string {
	optional := []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"salary_annual", r.SalaryAnnual},
		{"equity_percentage", r.EquityPercentage},
		{"company_valuation", r.CompanyValuation},
		{"vesting_period_years", r.VestingPeriodYears},
	}
	for _, o := range optional {
		if o.v.Valid && o.v.Decimal.IsNegative() {
			return o.name
		}
	}
	required := []struct {
		name string
		v    decimal.Decimal
	}{
		{"senior_engineering_rate", r.SeniorEngineeringRate},
		{"senior_business_rate", r.SeniorBusinessRate},
		{"junior_engineering_rate", r.JuniorEngineeringRate},
		{"junior_business_rate", r.JuniorBusinessRate},
		{"ea_rate", r.EARate},
	}
	for _, q := range required {
		if q.v.IsNegative() {
			return q.name
		}
	}
	return ""
}

// Money wraps a required amount.
func Money(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// OptionalMoney wraps an optional amount; nil yields an absent value.
func OptionalMoney(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}
