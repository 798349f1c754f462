package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/founderbleed/bleed/internal/adapters/calendar/google"
	"github.com/founderbleed/bleed/internal/adapters/http/api"
	"github.com/founderbleed/bleed/internal/adapters/http/swagger"
	"github.com/founderbleed/bleed/internal/adapters/repository"
	"github.com/founderbleed/bleed/internal/adapters/repository/postgres"
	service "github.com/founderbleed/bleed/internal/app"
	"github.com/founderbleed/bleed/internal/config"
	"github.com/founderbleed/bleed/internal/domain/audit"
	"github.com/founderbleed/bleed/internal/schedule"
	"github.com/founderbleed/bleed/pkg/crypto"
	"github.com/founderbleed/bleed/pkg/logger"
	"github.com/founderbleed/bleed/pkg/metrics"
	"github.com/founderbleed/bleed/pkg/token"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
	rateLimitWindow        = time.Minute
	refreshJobName         = "refresh-connected"
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "bleed exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logger.Get()

	// Load configuration (.env -> defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	tokens, err := newTokenManager(cfg)
	if err != nil {
		return err
	}

	svc, err := newService(cfg, store, tokens)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	limiter, err := newRateLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer limiter.Close()

	sched, err := newScheduler(cfg, svc)
	if err != nil {
		return err
	}
	if sched != nil {
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := sched.Stop(stopCtx); err != nil {
				log.Warn(ctx, "scheduler did not stop cleanly", logger.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, tokens, limiter),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// closableStore is a Store that owns external resources.
type closableStore interface {
	repository.Store
	Close() error
}

// openStore connects to Postgres and applies migrations. It returns nil when
// no database is configured and the service falls back to memory.
func openStore(ctx context.Context, cfg *config.Config) (closableStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	migrator, err := postgres.NewMigrator(pool, cfg.MigrationsDir)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := migrator.Up(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return postgres.New(pool), nil
}

func newTokenManager(cfg *config.Config) (*token.Manager, error) {
	if cfg.JWTSecret == "" {
		logger.Get().Warn(context.Background(), "jwt_secret not set; authenticated routes will answer 401")
		return nil, nil
	}
	return token.NewManager(cfg.JWTSecret, cfg.TokenTTL())
}

func newService(cfg *config.Config, store repository.Store, tokens *token.Manager) (*service.Service, error) {
	strategy, err := audit.ParseRateStrategy(cfg.RateStrategy)
	if err != nil {
		return nil, err
	}
	policy, err := audit.ParseUnknownTierPolicy(cfg.UnknownTierPolicy)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(logger.Get().Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithLimits(cfg.MaxAuditDays, cfg.MaxEventsPerAudit),
		service.WithEngineOptions(audit.WithRateStrategy(strategy), audit.WithUnknownTierPolicy(policy)),
		service.WithRefreshWindow(cfg.RefreshWindow()),
	}
	if store != nil {
		opts = append(opts, service.WithStore(store))
	}
	if tokens != nil {
		opts = append(opts, service.WithTokens(tokens))
	}
	if cfg.EncryptionSecret != "" {
		cipher, err := crypto.NewCipher(cfg.EncryptionSecret)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithCipher(cipher))
	}
	if cfg.GoogleEnabled() {
		var gopts []google.Option
		if cfg.GoogleAPIBaseURL != "" {
			gopts = append(gopts, google.WithBaseURL(cfg.GoogleAPIBaseURL))
		}
		opts = append(opts, service.WithGoogle(google.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, gopts...)))
	}
	return service.New(opts...), nil
}

// newRateLimiter prefers Redis so limits hold across replicas.
func newRateLimiter(ctx context.Context, cfg *config.Config) (api.RateLimiter, error) {
	if cfg.RedisAddr == "" {
		return api.NewMemoryRateLimiter(), nil
	}
	return api.NewRedisRateLimiter(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

// newScheduler registers the connected calendar refresh. It returns nil when
// no schedule is configured.
func newScheduler(cfg *config.Config, svc *service.Service) (*schedule.Scheduler, error) {
	if cfg.RefreshSchedule == "" {
		return nil, nil
	}
	sched := schedule.New()
	if err := sched.Add(refreshJobName, cfg.RefreshSchedule, svc.RefreshConnected); err != nil {
		return nil, err
	}
	return sched, nil
}

func newMux(ctx context.Context, cfg *config.Config, svc *service.Service, tokens *token.Manager, limiter api.RateLimiter) *http.ServeMux {
	mux := http.NewServeMux()

	// Register API docs under /api-docs
	swagger.Register(ctx, mux)

	opts := []api.Option{
		api.WithLogger(logger.Get().Named("http")),
		api.WithRateLimiter(limiter, cfg.RateLimitPerMinute, rateLimitWindow),
	}
	if tokens != nil {
		opts = append(opts, api.WithTokens(tokens))
	}
	api.NewServer(svc, opts...).Register(ctx, mux)
	return mux
}

// startServiceMetricsUpdater refreshes the service gauges until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateServiceMetrics pushes queue and worker figures to Prometheus.
func updateServiceMetrics(svc *service.Service) {
	// GetStats already updates the queue gauge
	stats := svc.GetStats()

	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
	if total, ok := stats["totalAudits"].(int); ok {
		metrics.UpdateAuditsStored(total)
	}
}
