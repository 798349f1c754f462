package bleedctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/internal/domain/types"
	"github.com/founderbleed/bleed/pkg/logger"
)

const (
	maxVerifyPage   = 100
	pollInterval    = 250 * time.Millisecond
	maxErrorBody    = 512
	workerChanScale = 2
)

// ErrLoadFailed is returned when submissions fail or audits never complete.
var ErrLoadFailed = errors.New("load run failed")

// LoadConfig drives a load run against a running server.
type LoadConfig struct {
	BaseURL        string
	Token          string
	Audits         int
	EventsPerAudit int
	Workers        int
	Async          bool
	Duplicates     int           // resubmit this many keys to check idempotency
	Timeout        time.Duration // per request
	SettleTimeout  time.Duration // how long to wait for queued audits
	Seed           uint64
}

// LoadStats summarizes a load run.
type LoadStats struct {
	Submitted  int64         `json:"submitted"`
	Completed  int64         `json:"completed"`
	Queued     int64         `json:"queued"`
	Duplicate  int64         `json:"duplicate"`
	Rejected   int64         `json:"rejected"`
	Failed     int64         `json:"failed"`
	Verified   int           `json:"verified"`
	Duration   time.Duration `json:"duration"`
	PerSecond  float64       `json:"per_second"`
	FirstError string        `json:"first_error,omitempty"`
}

type submission struct {
	key  string
	body createAudit
}

type createAudit struct {
	PeriodStart time.Time             `json:"period_start"`
	PeriodEnd   time.Time             `json:"period_end"`
	Events      []model.CalendarEvent `json:"events"`
	Rates       model.RateConfig      `json:"rates"`
	Async       bool                  `json:"async"`
}

type listAudits struct {
	Audits []model.Audit `json:"audits"`
}

func newLoadCommand() *cobra.Command {
	cfg := LoadConfig{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Submit synthetic audits to a running server and verify them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := RunLoad(cmd.Context(), cfg)
			if stats != nil {
				if perr := printJSON(cmd.OutOrStdout(), stats); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the server")
	f.StringVar(&cfg.Token, "token", "", "bearer token (see bleedctl token)")
	f.IntVar(&cfg.Audits, "audits", 200, "number of audits to submit")
	f.IntVar(&cfg.EventsPerAudit, "events", 50, "events per audit")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "concurrent submitters")
	f.BoolVar(&cfg.Async, "async", true, "queue audits instead of computing inline")
	f.IntVar(&cfg.Duplicates, "duplicates", 10, "idempotency keys to resubmit")
	f.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "per request timeout")
	f.DurationVar(&cfg.SettleTimeout, "settle", time.Minute, "wait for queued audits to finish")
	f.Uint64Var(&cfg.Seed, "seed", 1, "generator seed")
	return cmd
}

// RunLoad checks health, generates audits, submits them concurrently,
// resubmits a few idempotency keys and finally verifies the stored audits.
func RunLoad(ctx context.Context, cfg LoadConfig) (*LoadStats, error) {
	if cfg.Audits <= 0 || cfg.Workers <= 0 || cfg.EventsPerAudit <= 0 {
		return nil, fmt.Errorf("%w: audits, events and workers must be positive", ErrUsage)
	}
	log := logger.Named("load")
	client := &loadClient{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: cfg.Timeout},
	}

	if err := client.health(ctx); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	subs := generateAudits(cfg)
	log.Info(ctx, "submitting audits",
		logger.Int("audits", len(subs)),
		logger.Int("workers", cfg.Workers),
		logger.Bool("async", cfg.Async),
	)

	stats := &LoadStats{}
	began := time.Now()
	client.submitAll(ctx, subs, cfg.Workers, stats)

	dups := min(cfg.Duplicates, len(subs))
	if cfg.Async && dups > 0 && stats.Failed == 0 {
		client.submitAll(ctx, subs[:dups], cfg.Workers, stats)
	}

	verified, err := client.settle(ctx, int(stats.Completed+stats.Queued), cfg.SettleTimeout)
	stats.Verified = verified
	stats.Duration = time.Since(began)
	if s := stats.Duration.Seconds(); s > 0 {
		stats.PerSecond = float64(stats.Submitted) / s
	}

	log.Info(ctx, "load run finished",
		logger.Any("submitted", stats.Submitted),
		logger.Any("failed", stats.Failed),
		logger.Any("duplicate", stats.Duplicate),
		logger.Int("verified", stats.Verified),
		logger.Duration("duration", stats.Duration),
	)

	if err != nil {
		return stats, err
	}
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%w: %d submissions failed: %s", ErrLoadFailed, stats.Failed, stats.FirstError)
	}
	if cfg.Async && stats.Duplicate != int64(dups) {
		return stats, fmt.Errorf("%w: %d of %d resubmissions were deduplicated", ErrLoadFailed, stats.Duplicate, dups)
	}
	return stats, nil
}

var (
	loadTitles = []string{
		"Standup", "Hiring sync", "Board prep", "Investor call", "Code review",
		"Expense reports", "Customer demo", "1:1", "Roadmap", "Inbox zero",
	}
	leaveTitles = []string{"Vacation", "PTO", "Out of office", "Doctor appointment"}
	verticals   = []types.Vertical{types.VerticalUniversal, types.VerticalEngineering, types.VerticalBusiness}
)

func generateAudits(cfg LoadConfig) []submission {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	periodStart := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 0, 14)
	tiers := types.Tiers()

	subs := make([]submission, cfg.Audits)
	for i := range subs {
		events := make([]model.CalendarEvent, cfg.EventsPerAudit)
		for j := range events {
			start := periodStart.Add(time.Duration(rng.IntN(14*24)) * time.Hour)
			minutes := 15 * (1 + rng.IntN(8))
			ev := model.CalendarEvent{
				ID:              fmt.Sprintf("load-%d-%d", i, j),
				Title:           loadTitles[rng.IntN(len(loadTitles))],
				Start:           start,
				End:             start.Add(time.Duration(minutes) * time.Minute),
				DurationMinutes: minutes,
				FinalTier:       tiers[rng.IntN(len(tiers))],
				Vertical:        verticals[rng.IntN(len(verticals))],
			}
			if rng.IntN(20) == 0 {
				ev.Title = leaveTitles[rng.IntN(len(leaveTitles))]
				ev.IsLeave = true
			}
			events[j] = ev
		}
		salary := float64(100_000 + 10_000*rng.IntN(20))
		subs[i] = submission{
			key: uuid.NewString(),
			body: createAudit{
				PeriodStart: periodStart,
				PeriodEnd:   periodEnd,
				Events:      events,
				Rates: model.RateConfig{
					SalaryAnnual:          model.OptionalMoney(&salary),
					SeniorEngineeringRate: model.Money(200_000),
					SeniorBusinessRate:    model.Money(150_000),
					JuniorEngineeringRate: model.Money(100_000),
					JuniorBusinessRate:    model.Money(70_000),
					EARate:                model.Money(50_000),
				},
				Async: cfg.Async,
			},
		}
	}
	return subs
}

type loadClient struct {
	base  string
	token string
	http  *http.Client
}

func (c *loadClient) do(ctx context.Context, method, path string, body any, hdr map[string]string) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	return c.http.Do(req)
}

func (c *loadClient) health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *loadClient) submitAll(ctx context.Context, subs []submission, workers int, stats *LoadStats) {
	ch := make(chan submission, workers*workerChanScale)
	var (
		wg       sync.WaitGroup
		firstErr sync.Once
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range ch {
				atomic.AddInt64(&stats.Submitted, 1)
				status, err := c.submit(ctx, s)
				switch {
				case err != nil:
					atomic.AddInt64(&stats.Failed, 1)
					firstErr.Do(func() { stats.FirstError = err.Error() })
				case status == http.StatusCreated:
					atomic.AddInt64(&stats.Completed, 1)
				case status == http.StatusAccepted:
					atomic.AddInt64(&stats.Queued, 1)
				case status == http.StatusOK:
					atomic.AddInt64(&stats.Duplicate, 1)
				case status == http.StatusTooManyRequests:
					atomic.AddInt64(&stats.Rejected, 1)
				}
			}
		}()
	}

feed:
	for _, s := range subs {
		select {
		case <-ctx.Done():
			break feed
		case ch <- s:
		}
	}
	close(ch)
	wg.Wait()
}

func (c *loadClient) submit(ctx context.Context, s submission) (int, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/audits", s.body, map[string]string{"Idempotency-Key": s.key})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

// settle polls the newest audits until none of them is pending and returns
// how many completed. Only the newest page is inspected.
func (c *loadClient) settle(ctx context.Context, want int, timeout time.Duration) (int, error) {
	want = min(want, maxVerifyPage)
	if want == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		done, pending, err := c.countCompleted(ctx, want)
		if err != nil {
			return 0, err
		}
		if pending == 0 {
			return done, nil
		}
		select {
		case <-ctx.Done():
			return done, fmt.Errorf("%w: %d audits still pending", ErrLoadFailed, pending)
		case <-ticker.C:
		}
	}
}

func (c *loadClient) countCompleted(ctx context.Context, limit int) (done, pending int, err error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/audits?limit=%d", limit), nil, nil)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("list audits: status %d", resp.StatusCode)
	}
	var out listAudits
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("list audits: %w", err)
	}
	for _, a := range out.Audits {
		switch a.Status {
		case model.AuditCompleted:
			done++
		case model.AuditPending:
			pending++
		}
	}
	return done, pending, nil
}
