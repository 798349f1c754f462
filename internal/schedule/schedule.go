// Package schedule runs periodic jobs on cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/founderbleed/bleed/pkg/logger"
	"github.com/founderbleed/bleed/pkg/metrics"
)

const defaultJobTimeout = 10 * time.Minute

// ErrUnknownJob is returned by RunNow for names never added.
var ErrUnknownJob = errors.New("schedule: unknown job")

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Overlapping runs of the same job are
// skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  logger.Logger
	timeout time.Duration
	loc     *time.Location

	mu   sync.Mutex
	jobs map[string]Job
	base context.Context
	stop context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithJobTimeout bounds each run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLocation sets the time zone the expressions are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	l := logger.Get().Named("schedule")
	base, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		logger:  l,
		timeout: defaultJobTimeout,
		loc:     time.Local,
		jobs:    make(map[string]Job),
		base:    base,
		stop:    stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithLocation(s.loc), cron.WithChain(
		cron.Recover(cronLogger{l}),
		cron.SkipIfStillRunning(cronLogger{l}),
	))
	return s
}

// Validate reports whether spec is a standard five-field expression or a
// descriptor such as "@hourly".
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule: %q: %w", spec, err)
	}
	return nil
}

// Add registers job under name on spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if err := Validate(spec); err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs[name] = job
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(spec, func() { s.run(name, job) }); err != nil {
		return fmt.Errorf("schedule: add %s: %w", name, err)
	}
	s.logger.Info(s.base, "job scheduled", logger.String("job", name), logger.String("spec", spec))
	return nil
}

// RunNow runs a registered job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(name, job)
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels running ones and waits for them to return
// or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("schedule: stop: %w", ctx.Err())
	}
}

func (s *Scheduler) run(name string, job Job) error {
	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	if err != nil {
		metrics.RecordScheduledRun("error")
		s.logger.Error(ctx, "scheduled job failed",
			logger.String("job", name),
			logger.Duration("took", time.Since(start)),
			logger.Error(err),
		)
		return err
	}
	metrics.RecordScheduledRun("ok")
	s.logger.Debug(ctx, "scheduled job finished", logger.String("job", name), logger.Duration("took", time.Since(start)))
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(context.Background(), msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(context.Background(), msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
