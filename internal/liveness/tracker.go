// Package liveness tracks ephemeral render-stream entities and evicts the ones
// that stop being reported.
package liveness

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sufyanAbbasi/efflux/internal/models"
)

// DefaultWindow is how long an entity may go unreported before eviction.
const DefaultWindow = 3 * time.Second

// Entity is one tracked render-stream object.
type Entity struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Position models.Position `json:"position"`
	Visible  bool            `json:"visible"`
	LastSeen time.Time       `json:"lastSeen"`
}

// EvictFunc is called, outside the tracker lock, for every evicted entity.
type EvictFunc func(e Entity)

// Tracker maps entity ids to last-seen timestamps.
type Tracker struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	window   time.Duration
	now      func() time.Time
	onEvict  EvictFunc
	logger   *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithEvict sets the eviction callback.
func WithEvict(fn EvictFunc) Option {
	return func(t *Tracker) { t.onEvict = fn }
}

// NewTracker creates a tracker. A non-positive window selects DefaultWindow.
func NewTracker(window time.Duration, logger *zap.Logger, opts ...Option) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Tracker{
		entities: make(map[string]*Entity),
		window:   window,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the configured liveness window.
func (t *Tracker) Window() time.Duration { return t.window }

// Touch records that r was just reported.
func (t *Tracker) Touch(r *models.Renderable) {
	if r == nil || r.ID == "" {
		return
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entities[r.ID]
	if !ok {
		e = &Entity{ID: r.ID, Kind: models.Kind(r.ID)}
		t.entities[r.ID] = e
	}
	e.Position = r.Position
	e.Visible = r.Visible
	e.LastSeen = now
}

// Sweep evicts every entity whose age at now is strictly greater than the
// window, and returns them.
func (t *Tracker) Sweep(now time.Time) []Entity {
	var evicted []Entity

	t.mu.Lock()
	for id, e := range t.entities {
		if now.Sub(e.LastSeen) > t.window {
			evicted = append(evicted, *e)
			delete(t.entities, id)
		}
	}
	t.mu.Unlock()

	if len(evicted) == 0 {
		return nil
	}
	t.logger.Debug("Entities evicted", zap.Int("count", len(evicted)))
	if t.onEvict != nil {
		for _, e := range evicted {
			t.onEvict(e)
		}
	}
	return evicted
}

// Run sweeps once per window until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(t.now())
		}
	}
}

// Len returns the number of tracked entities.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entities)
}

// Snapshot returns all tracked entities sorted by id.
func (t *Tracker) Snapshot() []Entity {
	t.mu.RLock()
	out := make([]Entity, 0, len(t.entities))
	for _, e := range t.entities {
		out = append(out, *e)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
