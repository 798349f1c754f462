package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/founderbleed/bleed/internal/domain/types"
)

// AuditMetrics is the computed snapshot for one audit period.
type AuditMetrics struct {
	TotalHours         float64                `json:"total_hours"`
	WorkingDays        int                    `json:"working_days"`
	HoursByTier        map[types.Tier]float64 `json:"hours_by_tier"`
	FounderCostTotal   decimal.NullDecimal    `json:"founder_cost_total"`
	DelegatedCostTotal decimal.Decimal        `json:"delegated_cost_total"`
	Arbitrage          decimal.NullDecimal    `json:"arbitrage"`
	EfficiencyScore    int                    `json:"efficiency_score"`
	ReclaimableHours   float64                `json:"reclaimable_hours"`
}

// AuditStatus tracks an audit through asynchronous computation.
type AuditStatus string

const (
	AuditPending   AuditStatus = "pending"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

// Audit is one time-bounded computation over a user's calendar events.
type Audit struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Status      AuditStatus     `json:"status"`
	Source      string          `json:"source"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Days        int             `json:"days"`
	Events      []CalendarEvent `json:"events"`
	Rates       RateConfig      `json:"rates"`
	Metrics     *AuditMetrics   `json:"metrics,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PeriodDays returns the whole number of days in [start, end), rounding a
// partial day up.
func PeriodDays(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	d := end.Sub(start)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// AuditJob asks a worker to compute the metrics of a pending audit.
type AuditJob struct {
	AuditID string
	UserID  string
}

// CalendarConnection holds a user's OAuth link to a calendar provider. The
// refresh token is stored encrypted.
type CalendarConnection struct {
	UserID                 string    `json:"user_id"`
	Provider               string    `json:"provider"`
	CalendarID             string    `json:"calendar_id"`
	AccessToken            string    `json:"-"`
	RefreshTokenCiphertext []byte    `json:"-"`
	Expiry                 time.Time `json:"expiry"`
	UpdatedAt              time.Time `json:"updated_at"`
}
