// Package audit computes time and cost metrics from classified calendar events.
package audit

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/internal/domain/types"
)

const (
	minutesPerHour = 60
	daysPerWeek    = 7
)

var (
	minutesPerYear = decimal.NewFromInt(minutesPerHour * model.HoursPerYear)
	two            = decimal.NewFromInt(2)
	hundred        = decimal.NewFromInt(100)
)

// Engine computes AuditMetrics. The zero value uses the default policies and
// is safe for concurrent use.
type Engine struct {
	unknownTier UnknownTierPolicy
	strategy    RateStrategy
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategy returns the configured rate strategy.
func (e *Engine) Strategy() RateStrategy { return e.strategy }

// Compute runs the default engine.
func Compute(events []model.CalendarEvent, rates model.RateConfig, auditDays int) model.AuditMetrics {
	var e Engine
	return e.Compute(events, rates, auditDays)
}

type bucketKey struct {
	tier     types.Tier
	vertical types.Vertical
}

// Compute aggregates the work events and prices them. Leave events are
// skipped. It never fails: empty input yields zero metrics.
func (e *Engine) Compute(events []model.CalendarEvent, rates model.RateConfig, auditDays int) model.AuditMetrics {
	tierMinutes := make(map[types.Tier]int64, len(types.Tiers()))
	delegated := make(map[bucketKey]int64)

	for _, ev := range events {
		if ev.IsLeave {
			continue
		}
		tier, ok := e.resolveTier(ev.FinalTier)
		if !ok {
			continue
		}
		mins := int64(ev.DurationMinutes)
		tierMinutes[tier] += mins
		if tier.Delegable() {
			delegated[bucketKey{tier, e.verticalFor(ev.Vertical)}] += mins
		}
	}

	m := model.AuditMetrics{
		WorkingDays: max(auditDays, 1),
		HoursByTier: make(map[types.Tier]float64, len(types.Tiers())),
	}

	var totalMinutes int64
	for _, t := range types.Tiers() {
		h := float64(tierMinutes[t]) / minutesPerHour
		m.HoursByTier[t] = h
		m.TotalHours += h
		totalMinutes += tierMinutes[t]
	}

	m.DelegatedCostTotal = e.delegatedCost(delegated, rates)
	m.FounderCostTotal = founderCost(rates, totalMinutes)
	if m.FounderCostTotal.Valid {
		m.Arbitrage = decimal.NewNullDecimal(m.FounderCostTotal.Decimal.Sub(m.DelegatedCostTotal))
	}

	if m.TotalHours > 0 {
		leverage := m.HoursByTier[types.TierUnique] + m.HoursByTier[types.TierFounder]
		m.EfficiencyScore = int(math.Round(100 * leverage / m.TotalHours))

		delegable := m.HoursByTier[types.TierSenior] + m.HoursByTier[types.TierJunior] + m.HoursByTier[types.TierEA]
		weekly := m.TotalHours / (float64(m.WorkingDays) / daysPerWeek)
		m.ReclaimableHours = math.Round(delegable/m.TotalHours*weekly*10) / 10
	}

	return m
}

func (e *Engine) resolveTier(t types.Tier) (types.Tier, bool) {
	if t == "" {
		return types.DefaultTier, true
	}
	if t.Valid() {
		return t, true
	}
	if e.unknownTier == UnknownTierSenior {
		return types.TierSenior, true
	}
	return "", false
}

func (e *Engine) verticalFor(v types.Vertical) types.Vertical {
	if e.strategy != VerticalRates {
		return types.VerticalUniversal
	}
	switch v {
	case types.VerticalEngineering, types.VerticalBusiness:
		return v
	}
	return types.VerticalUniversal
}

// delegatedCost sums annualRate*minutes and divides once by the minutes in a
// working year.
func (e *Engine) delegatedCost(buckets map[bucketKey]int64, r model.RateConfig) decimal.Decimal {
	total := decimal.Zero
	for k, mins := range buckets {
		total = total.Add(annualRate(k, r).Mul(decimal.NewFromInt(mins)))
	}
	return total.Div(minutesPerYear)
}

func annualRate(k bucketKey, r model.RateConfig) decimal.Decimal {
	var eng, biz decimal.Decimal
	switch k.tier {
	case types.TierSenior:
		eng, biz = r.SeniorEngineeringRate, r.SeniorBusinessRate
	case types.TierJunior:
		eng, biz = r.JuniorEngineeringRate, r.JuniorBusinessRate
	case types.TierEA:
		return r.EARate
	default:
		return decimal.Zero
	}
	switch k.vertical {
	case types.VerticalEngineering:
		return eng
	case types.VerticalBusiness:
		return biz
	}
	return eng.Add(biz).Div(two)
}

func founderCost(r model.RateConfig, totalMinutes int64) decimal.NullDecimal {
	if !r.SalaryAnnual.Valid {
		return decimal.NullDecimal{}
	}
	annual := r.SalaryAnnual.Decimal
	if r.HasEquity() {
		equity := r.CompanyValuation.Decimal.
			Mul(r.EquityPercentage.Decimal).
			Div(hundred).
			Div(r.VestingPeriodYears.Decimal)
		annual = annual.Add(equity)
	}
	return decimal.NewNullDecimal(annual.Mul(decimal.NewFromInt(totalMinutes)).Div(minutesPerYear))
}

// ParseRateStrategy maps a config name to a RateStrategy.
func ParseRateStrategy(s string) (RateStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blended":
		return BlendedRates, nil
	case "vertical":
		return VerticalRates, nil
	}
	return 0, fmt.Errorf("%w: rate strategy %q", ErrUnknownStrategy, s)
}

// ParseUnknownTierPolicy maps a config name to an UnknownTierPolicy.
func ParseUnknownTierPolicy(s string) (UnknownTierPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return UnknownTierIgnore, nil
	case "senior":
		return UnknownTierSenior, nil
	}
	return 0, fmt.Errorf("%w: unknown tier policy %q", ErrUnknownStrategy, s)
}
