package bleedctl

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	service "github.com/founderbleed/bleed/internal/app"
	"github.com/founderbleed/bleed/internal/domain/audit"
	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/pkg/logger"
)

// ErrUsage marks invalid flag combinations.
var ErrUsage = errors.New("usage")

// ErrInvalidRates reports a rates file that lacks a required rate.
var ErrInvalidRates = errors.New("invalid rates")

func newClassifyCommand() *cobra.Command {
	var in service.ClassifyInput

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one event as leave or work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := service.New(service.WithLogger(logger.Named("bleedctl")))
			return printJSON(cmd.OutOrStdout(), svc.Classify(cmd.Context(), in))
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "event title")
	cmd.Flags().StringVar(&in.Description, "description", "", "event description")
	cmd.Flags().BoolVar(&in.IsAllDay, "all-day", false, "event spans whole days")
	cmd.Flags().StringVar(&in.EventType, "event-type", "", "provider event type, e.g. outOfOffice")
	return cmd
}

// auditReport is what the audit command prints.
type auditReport struct {
	PeriodStart time.Time             `json:"period_start"`
	PeriodEnd   time.Time             `json:"period_end"`
	Days        int                   `json:"days"`
	Events      int                   `json:"events"`
	LeaveEvents int                   `json:"leave_events"`
	Skipped     int                   `json:"skipped"`
	Truncated   []string              `json:"truncated,omitempty"`
	BadRules    []string              `json:"bad_rules,omitempty"`
	Metrics     model.AuditMetrics    `json:"metrics"`
	Detail      []model.CalendarEvent `json:"detail,omitempty"`
}

func newAuditCommand() *cobra.Command {
	var (
		icsPath     string
		ratesPath   string
		start, end  string
		strategy    string
		unknownTier string
		detail      bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit an iCalendar export offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if icsPath == "" || ratesPath == "" {
				return fmt.Errorf("%w: --ics and --rates are required", ErrUsage)
			}
			from, err := parseDate("start", start)
			if err != nil {
				return err
			}
			to, err := parseDate("end", end)
			if err != nil {
				return err
			}
			rs, err := audit.ParseRateStrategy(strategy)
			if err != nil {
				return err
			}
			policy, err := audit.ParseUnknownTierPolicy(unknownTier)
			if err != nil {
				return err
			}
			rates, err := loadRates(ratesPath)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(icsPath)
			if err != nil {
				return fmt.Errorf("read calendar: %w", err)
			}

			svc := service.New(
				service.WithLogger(logger.Named("bleedctl")),
				service.WithEngineOptions(audit.WithRateStrategy(rs), audit.WithUnknownTierPolicy(policy)),
			)
			imported, err := svc.ImportICS(cmd.Context(), body, from, to)
			if err != nil {
				return err
			}
			m, err := svc.ComputeMetrics(cmd.Context(), imported.Events, rates, imported.Days)
			if err != nil {
				return err
			}

			report := auditReport{
				PeriodStart: from,
				PeriodEnd:   to,
				Days:        imported.Days,
				Events:      len(imported.Events),
				Skipped:     imported.Skipped,
				Truncated:   imported.Truncated,
				BadRules:    imported.BadRules,
				Metrics:     m,
			}
			for _, e := range imported.Events {
				if e.IsLeave {
					report.LeaveEvents++
				}
			}
			if detail {
				report.Detail = imported.Events
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&icsPath, "ics", "", "path to an .ics export")
	cmd.Flags().StringVar(&ratesPath, "rates", "", "path to a YAML rates file")
	cmd.Flags().StringVar(&start, "start", "", "period start (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "period end, exclusive")
	cmd.Flags().StringVar(&strategy, "rate-strategy", "blended", "blended or vertical")
	cmd.Flags().StringVar(&unknownTier, "unknown-tier", "ignore", "ignore or senior")
	cmd.Flags().BoolVar(&detail, "detail", false, "include every classified event")
	return cmd
}

// ratesFile is the YAML shape of a rates file. Owner amounts may be
// omitted; every delegated rate must be present.
type ratesFile struct {
	SalaryAnnual       *float64 `yaml:"salary_annual"`
	EquityPercentage   *float64 `yaml:"equity_percentage"`
	CompanyValuation   *float64 `yaml:"company_valuation"`
	VestingPeriodYears *float64 `yaml:"vesting_period_years"`

	SeniorEngineeringRate *float64 `yaml:"senior_engineering_rate"`
	SeniorBusinessRate    *float64 `yaml:"senior_business_rate"`
	JuniorEngineeringRate *float64 `yaml:"junior_engineering_rate"`
	JuniorBusinessRate    *float64 `yaml:"junior_business_rate"`
	EARate                *float64 `yaml:"ea_rate"`
}

func (f ratesFile) toRateConfig() (model.RateConfig, error) {
	required := []struct {
		name string
		v    *float64
	}{
		{"senior_engineering_rate", f.SeniorEngineeringRate},
		{"senior_business_rate", f.SeniorBusinessRate},
		{"junior_engineering_rate", f.JuniorEngineeringRate},
		{"junior_business_rate", f.JuniorBusinessRate},
		{"ea_rate", f.EARate},
	}
	for _, r := range required {
		if r.v == nil {
			return model.RateConfig{}, fmt.Errorf("%w: %s is required", ErrInvalidRates, r.name)
		}
	}
	return model.RateConfig{
		SalaryAnnual:          model.OptionalMoney(f.SalaryAnnual),
		EquityPercentage:      model.OptionalMoney(f.EquityPercentage),
		CompanyValuation:      model.OptionalMoney(f.CompanyValuation),
		VestingPeriodYears:    model.OptionalMoney(f.VestingPeriodYears),
		SeniorEngineeringRate: model.Money(*f.SeniorEngineeringRate),
		SeniorBusinessRate:    model.Money(*f.SeniorBusinessRate),
		JuniorEngineeringRate: model.Money(*f.JuniorEngineeringRate),
		JuniorBusinessRate:    model.Money(*f.JuniorBusinessRate),
		EARate:                model.Money(*f.EARate),
	}, nil
}

func loadRates(path string) (model.RateConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.RateConfig{}, fmt.Errorf("read rates: %w", err)
	}
	var f ratesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return model.RateConfig{}, fmt.Errorf("parse rates %s: %w", path, err)
	}
	rates, err := f.toRateConfig()
	if err != nil {
		return model.RateConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return rates, nil
}

func parseDate(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: --%s is required", ErrUsage, name)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: --%s must be YYYY-MM-DD or RFC 3339", ErrUsage, name)
}
