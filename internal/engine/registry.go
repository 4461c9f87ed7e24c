package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cartsync/internal/metrics"
)

// DefaultIdleTTL is how long an unused session engine stays in memory.
const DefaultIdleTTL = 30 * time.Minute

const defaultSweepInterval = time.Minute

// Factory builds the engine for a cart session.
type Factory func(ctx context.Context, sessionID string) (*Engine, error)

// Registry holds one engine per cart session. Engines are created on first
// use and evicted after sitting idle; their state survives in the local
// durable cache and is restored on next use.
type Registry struct {
	factory Factory
	idleTTL time.Duration
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	// creating dedupes concurrent first requests for one session; the
	// factory restores from the durable cache and runs outside mu.
	creating singleflight.Group
}

type entry struct {
	engine   *Engine
	lastUsed time.Time
}

// NewRegistry creates a registry. idleTTL ≤ 0 uses DefaultIdleTTL.
func NewRegistry(factory Factory, idleTTL time.Duration, logger *slog.Logger, m *metrics.Recorder) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		factory: factory,
		idleTTL: idleTTL,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Get returns the engine for sessionID, creating it if needed.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Engine, error) {
	if eng := r.lookup(sessionID); eng != nil {
		return eng, nil
	}

	v, err, _ := r.creating.Do(sessionID, func() (any, error) {
		if eng := r.lookup(sessionID); eng != nil {
			return eng, nil
		}
		eng, err := r.factory(context.WithoutCancel(ctx), sessionID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.entries[sessionID] = &entry{engine: eng, lastUsed: r.now()}
		n := len(r.entries)
		r.mu.Unlock()

		r.metrics.SessionsActive(n)
		r.logger.Debug("cart session started", slog.Int("sessions", n))
		return eng, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

func (r *Registry) lookup(sessionID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[sessionID]; ok {
		e.lastUsed = r.now()
		return e.engine
	}
	return nil
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep evicts engines idle longer than the TTL that have no sync in flight
// and no subscriber. Returns the number evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	evicted := 0
	for id, e := range r.entries {
		if e.engine.Busy() || e.engine.Watched() {
			// An open event stream keeps the session alive; its idle
			// clock starts when the stream ends.
			e.lastUsed = r.now()
			continue
		}
		if e.lastUsed.Before(cutoff) {
			delete(r.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.metrics.SessionsActive(len(r.entries))
		r.logger.Debug("evicted idle cart sessions", slog.Int("evicted", evicted), slog.Int("sessions", len(r.entries)))
	}
	return evicted
}

// StartSweeper evicts idle engines at a fixed cadence until ctx is done.
// It returns immediately.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}
