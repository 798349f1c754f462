// Package service implements the audit operations behind the HTTP API and
// the CLI.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/founderbleed/bleed/internal/adapters/calendar/google"
	eventqueue "github.com/founderbleed/bleed/internal/adapters/mq/queue"
	workerpool "github.com/founderbleed/bleed/internal/adapters/mq/worker"
	"github.com/founderbleed/bleed/internal/adapters/repository"
	"github.com/founderbleed/bleed/internal/domain/audit"
	"github.com/founderbleed/bleed/internal/domain/dedupe"
	"github.com/founderbleed/bleed/pkg/crypto"
	"github.com/founderbleed/bleed/pkg/logger"
	"github.com/founderbleed/bleed/pkg/metrics"
	"github.com/founderbleed/bleed/pkg/token"
)

const (
	defaultMaxAuditDays  = 366
	defaultMaxEvents     = 10_000
	defaultRefreshWindow = 7 * 24 * time.Hour
	stopTimeout          = 30 * time.Second
	jobTimeout           = 2 * time.Minute
)

// Service owns the audit pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	deduper dedupe.Deduper
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	engine  *audit.Engine

	// Integrations, all optional
	google *google.Client
	tokens *token.Manager
	cipher *crypto.Cipher

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	maxAuditDays  int
	maxEvents     int
	refreshWindow time.Duration
	engineOpts    []audit.Option
	now           func() time.Time
	newID         func() string

	// State
	started   bool
	stopping  bool
	ownsStore bool
	cancel    context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the audit store. The default is an in-memory store that
// the service closes on Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithWorkerCount sets the number of audit workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLimits bounds the period length and event count of one audit.
func WithLimits(maxAuditDays, maxEvents int) Option {
	return func(s *Service) {
		if maxAuditDays > 0 {
			s.maxAuditDays = maxAuditDays
		}
		if maxEvents > 0 {
			s.maxEvents = maxEvents
		}
	}
}

// WithEngineOptions configures the metrics engine.
func WithEngineOptions(opts ...audit.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithGoogle enables Google Calendar connections.
func WithGoogle(c *google.Client) Option {
	return func(s *Service) {
		s.google = c
	}
}

// WithTokens sets the manager used for OAuth state tokens.
func WithTokens(m *token.Manager) Option {
	return func(s *Service) {
		s.tokens = m
	}
}

// WithCipher sets the cipher protecting stored refresh tokens.
func WithCipher(c *crypto.Cipher) Option {
	return func(s *Service) {
		s.cipher = c
	}
}

// WithRefreshWindow sets the trailing period RefreshConnected audits.
func WithRefreshWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshWindow = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides audit ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Pure operations work immediately; audit
// operations need Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     1024,
		dedupeSize:    50_000,
		maxAuditDays:  defaultMaxAuditDays,
		maxEvents:     defaultMaxEvents,
		refreshWindow: defaultRefreshWindow,
		now:           time.Now,
		newID:         uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.engine = audit.NewEngine(s.engineOpts...)
	return s
}

// Start creates the queue and worker pool and begins processing jobs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting audit service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if s.store == nil {
		s.store = repository.NewMemoryStore(runCtx)
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s, workerpool.WithJobTimeout(jobTimeout))
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "audit service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("rateStrategy", s.engine.Strategy().String()),
	)
	return nil
}

// Stop drains queued jobs and shuts the workers down.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	pool := s.pool
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping audit service...")

	// Workers still read the store while draining, so the lock is released.
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.ownsStore {
		if closer, ok := s.store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		s.store = nil
		s.ownsStore = false
	}

	s.started = false
	s.stopping = false
	s.logger.Info(ctx, "audit service stopped")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"rateStrategy": s.engine.Strategy().String(),
		"google":       s.google != nil && s.google.Configured(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["totalAudits"] = s.store.Count(ctx)
		stats["idempotencyKeys"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}

// components returns the running store and queue or ErrNotStarted.
func (s *Service) components() (repository.Store, *eventqueue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.queue, nil
}

func notFound(err error, what string) error {
	return fmt.Errorf("%w: %s: %w", ErrNotFound, what, err)
}
