package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/founderbleed/bleed/internal/domain/model"
	"github.com/founderbleed/bleed/pkg/metrics"
)

const defaultMetricsUpdateInterval = 5 * time.Second

type connKey struct {
	userID   string
	provider string
}

// MemoryStore implements Store in process memory. Every read and write copies
// the record.
type MemoryStore struct {
	mu          sync.RWMutex
	audits      map[string]*model.Audit
	byUser      map[string][]string
	rates       map[string]model.RateConfig
	connections map[connKey]*model.CalendarConnection

	metricsUpdateInterval time.Duration
	now                   func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs a store and starts its metrics updater, which
// stops when ctx ends or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		audits:                make(map[string]*model.Audit),
		byUser:                make(map[string][]string),
		rates:                 make(map[string]model.RateConfig),
		connections:           make(map[connKey]*model.CalendarConnection),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		now:                   time.Now,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) SaveAudit(_ context.Context, a *model.Audit) error {
	if a == nil || a.ID == "" || a.UserID == "" {
		return fmt.Errorf("save audit: %w", ErrInvalidRecord)
	}
	c := CloneAudit(a)
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.audits[c.ID]; ok {
		if prev.UserID != c.UserID {
			return fmt.Errorf("save audit %s: owner mismatch: %w", c.ID, ErrInvalidRecord)
		}
		c.CreatedAt = prev.CreatedAt
	} else {
		s.byUser[c.UserID] = append(s.byUser[c.UserID], c.ID)
	}
	s.audits[c.ID] = c
	a.CreatedAt, a.UpdatedAt = c.CreatedAt, c.UpdatedAt
	return nil
}

func (s *MemoryStore) GetAudit(_ context.Context, id string) (*model.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.audits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return CloneAudit(a), nil
}

func (s *MemoryStore) ListAudits(_ context.Context, userID string, limit int) ([]*model.Audit, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	ids := s.byUser[userID]
	out := make([]*model.Audit, 0, len(ids))
	for _, id := range ids {
		out = append(out, CloneAudit(s.audits[id]))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveRates(_ context.Context, userID string, rates model.RateConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[userID] = rates
	return nil
}

func (s *MemoryStore) GetRates(_ context.Context, userID string) (model.RateConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[userID]
	if !ok {
		return model.RateConfig{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) SaveConnection(_ context.Context, c *model.CalendarConnection) error {
	if c == nil || c.UserID == "" || c.Provider == "" {
		return fmt.Errorf("save connection: %w", ErrInvalidRecord)
	}
	cp := cloneConnection(c)
	cp.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[connKey{c.UserID, c.Provider}] = cp
	return nil
}

func (s *MemoryStore) GetConnection(_ context.Context, userID, provider string) (*model.CalendarConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[connKey{userID, provider}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConnection(c), nil
}

func (s *MemoryStore) ListConnections(_ context.Context, provider string) ([]*model.CalendarConnection, error) {
	s.mu.RLock()
	out := make([]*model.CalendarConnection, 0, len(s.connections))
	for k, c := range s.connections {
		if k.provider == provider {
			out = append(out, cloneConnection(c))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.audits)
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateAuditsStored(s.Count(ctx))
			}
		}
	}()
}
