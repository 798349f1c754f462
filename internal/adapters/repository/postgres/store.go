// Package postgres implements repository.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/founderbleed/bleed/internal/adapters/repository"
	"github.com/founderbleed/bleed/internal/domain/model"
)

// Store persists audits in PostgreSQL. Events, rates and metrics are JSONB.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Connect opens a pool and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// SaveAudit upserts an audit. created_at is kept on conflict.
func (s *Store) SaveAudit(ctx context.Context, a *model.Audit) error {
	if a == nil || a.ID == "" || a.UserID == "" {
		return fmt.Errorf("save audit: %w", repository.ErrInvalidRecord)
	}
	now := s.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	row, err := toAuditRow(a)
	if err != nil {
		return err
	}
	const query = `INSERT INTO audits (id, user_id, status, source, period_start, period_end, days, events, rates, metrics, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			days = EXCLUDED.days,
			events = EXCLUDED.events,
			rates = EXCLUDED.rates,
			metrics = EXCLUDED.metrics,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
		WHERE audits.user_id = EXCLUDED.user_id
		RETURNING created_at`
	var created time.Time
	err = s.pool.QueryRow(ctx, query,
		row.ID, row.UserID, row.Status, row.Source, row.PeriodStart, row.PeriodEnd, row.Days,
		row.Events, row.Rates, row.Metrics, row.Error, row.CreatedAt, row.UpdatedAt,
	).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("save audit %s: owner mismatch: %w", a.ID, repository.ErrInvalidRecord)
	}
	if err != nil {
		return fmt.Errorf("save audit %s: %w", a.ID, err)
	}
	a.CreatedAt = created.UTC()
	return nil
}

const auditColumns = `id, user_id, status, source, period_start, period_end, days, events, rates, metrics, error, created_at, updated_at`

func scanAudit(row pgx.Row) (*model.Audit, error) {
	var r auditRow
	if err := row.Scan(&r.ID, &r.UserID, &r.Status, &r.Source, &r.PeriodStart, &r.PeriodEnd, &r.Days,
		&r.Events, &r.Rates, &r.Metrics, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r.toAudit()
}

// GetAudit fetches one audit by ID.
func (s *Store) GetAudit(ctx context.Context, id string) (*model.Audit, error) {
	const query = `SELECT ` + auditColumns + ` FROM audits WHERE id = $1`
	a, err := scanAudit(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get audit %s: %w", id, err)
	}
	return a, nil
}

// ListAudits returns a user's audits, newest first.
func (s *Store) ListAudits(ctx context.Context, userID string, limit int) ([]*model.Audit, error) {
	if limit <= 0 {
		return nil, repository.ErrInvalidLimit
	}
	const query = `SELECT ` + auditColumns + ` FROM audits WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Audit, 0)
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("list audits: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveRates upserts a user's rate configuration.
func (s *Store) SaveRates(ctx context.Context, userID string, rates model.RateConfig) error {
	b, err := encodeRates(rates)
	if err != nil {
		return err
	}
	const query = `INSERT INTO rate_configs (user_id, rates, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET rates = EXCLUDED.rates, updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, userID, b, s.now().UTC()); err != nil {
		return fmt.Errorf("save rates: %w", err)
	}
	return nil
}

// GetRates fetches a user's rate configuration.
func (s *Store) GetRates(ctx context.Context, userID string) (model.RateConfig, error) {
	const query = `SELECT rates FROM rate_configs WHERE user_id = $1`
	var b []byte
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RateConfig{}, repository.ErrNotFound
		}
		return model.RateConfig{}, fmt.Errorf("get rates: %w", err)
	}
	return decodeRates(b)
}

// SaveConnection upserts a calendar connection.
func (s *Store) SaveConnection(ctx context.Context, c *model.CalendarConnection) error {
	if c == nil || c.UserID == "" || c.Provider == "" {
		return fmt.Errorf("save connection: %w", repository.ErrInvalidRecord)
	}
	c.UpdatedAt = s.now().UTC()
	const query = `INSERT INTO calendar_connections (user_id, provider, calendar_id, access_token, refresh_token, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			calendar_id = EXCLUDED.calendar_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry,
			updated_at = EXCLUDED.updated_at`
	_, err := s.pool.Exec(ctx, query, c.UserID, c.Provider, c.CalendarID, c.AccessToken,
		c.RefreshTokenCiphertext, nullTime(c.Expiry), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	return nil
}

const connectionColumns = `user_id, provider, calendar_id, access_token, refresh_token, expiry, updated_at`

func scanConnection(row pgx.Row) (*model.CalendarConnection, error) {
	var c model.CalendarConnection
	var expiry *time.Time
	if err := row.Scan(&c.UserID, &c.Provider, &c.CalendarID, &c.AccessToken, &c.RefreshTokenCiphertext, &expiry, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if expiry != nil {
		c.Expiry = expiry.UTC()
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// GetConnection fetches one provider connection of a user.
func (s *Store) GetConnection(ctx context.Context, userID, provider string) (*model.CalendarConnection, error) {
	const query = `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE user_id = $1 AND provider = $2`
	c, err := scanConnection(s.pool.QueryRow(ctx, query, userID, provider))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

// ListConnections returns every connection of a provider ordered by user.
func (s *Store) ListConnections(ctx context.Context, provider string) ([]*model.CalendarConnection, error) {
	const query = `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE provider = $1 ORDER BY user_id`
	rows, err := s.pool.Query(ctx, query, provider)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	out := make([]*model.CalendarConnection, 0)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("list connections: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of audits, or 0 when the query fails.
func (s *Store) Count(ctx context.Context) int {
	const query = `SELECT COUNT(1) FROM audits`
	var n int
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
