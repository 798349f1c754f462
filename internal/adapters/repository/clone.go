package repository

import (
	"maps"
	"slices"

	"github.com/founderbleed/bleed/internal/domain/model"
)

// CloneAudit returns a deep copy so callers never share slices or maps with
// the store.
func CloneAudit(a *model.Audit) *model.Audit {
	if a == nil {
		return nil
	}
	c := *a
	c.Events = slices.Clone(a.Events)
	if a.Metrics != nil {
		m := *a.Metrics
		m.HoursByTier = maps.Clone(a.Metrics.HoursByTier)
		c.Metrics = &m
	}
	return &c
}

func cloneConnection(c *model.CalendarConnection) *model.CalendarConnection {
	out := *c
	out.RefreshTokenCiphertext = slices.Clone(c.RefreshTokenCiphertext)
	return &out
}
