// Package repository defines the audit store interface and errors.
package repository

import (
	"context"

	"github.com/founderbleed/bleed/internal/domain/model"
)

// Store persists audits, rate configurations and calendar connections.
type Store interface {
	// SaveAudit inserts or replaces an audit keyed by its ID and stamps its
	// CreatedAt and UpdatedAt fields.
	SaveAudit(ctx context.Context, a *model.Audit) error
	// GetAudit returns ErrNotFound if the audit is unknown.
	GetAudit(ctx context.Context, id string) (*model.Audit, error)
	// ListAudits returns up to limit audits of a user, newest first.
	ListAudits(ctx context.Context, userID string, limit int) ([]*model.Audit, error)

	SaveRates(ctx context.Context, userID string, rates model.RateConfig) error
	// GetRates returns ErrNotFound if the user never saved rates.
	GetRates(ctx context.Context, userID string) (model.RateConfig, error)

	SaveConnection(ctx context.Context, c *model.CalendarConnection) error
	GetConnection(ctx context.Context, userID, provider string) (*model.CalendarConnection, error)
	ListConnections(ctx context.Context, provider string) ([]*model.CalendarConnection, error)

	// Count returns the number of stored audits.
	Count(ctx context.Context) int
}
