package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/founderbleed/bleed/pkg/logger"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationTimeout = time.Minute

// Migrator applies the schema with goose. An empty dir uses the migrations
// compiled into the binary.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
	dir  string
	log  logger.Logger
}

// NewMigrator returns a migration runner.
func NewMigrator(pool *pgxpool.Pool, dir string) (*Migrator, error) {
	if pool == nil {
		return nil, fmt.Errorf("migrator: nil pool")
	}
	m := &Migrator{pool: pool, fsys: embeddedMigrations, dir: "migrations", log: logger.Get().Named("migrate")}
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("locate migrations dir: %w", err)
		}
		m.fsys, m.dir = os.DirFS(dir), "."
	}
	return m, nil
}

// Up applies pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.withDB(func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
		defer cancel()

		m.log.Info(ctx, "applying migrations")
		if err := goose.UpContext(runCtx, db, m.dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		m.log.Info(ctx, "migrations applied")
		return nil
	})
}

// Down rolls back the latest migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.withDB(func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
		defer cancel()

		if err := goose.DownContext(runCtx, db, m.dir); err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
		return nil
	})
}

func (m *Migrator) withDB(fn func(*sql.DB) error) error {
	goose.SetBaseFS(m.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	db := stdlib.OpenDBFromPool(m.pool)
	defer db.Close()
	return fn(db)
}
