// Package pointer persists the identity-keyed remote cart pointer.
//
// Writes are debounced on the trailing edge and coalesced to the latest value,
// so a burst of syncs produces one write. A write whose value matches the last
// successful write for the same key is skipped. Anonymous sessions (empty
// key) never touch the store. Failures are logged and swallowed: a missing
// pointer only costs cross-device discovery, never the cart itself.
package pointer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cartsync/internal/adapter"
	"cartsync/internal/clock"
	"cartsync/internal/metrics"
	"cartsync/internal/model"
)

// DefaultDelay is the debounce window for scheduled writes.
const DefaultDelay = 500 * time.Millisecond

const writeTimeout = 5 * time.Second

// Manager is the Pointer Persistence Manager for one cart session.
type Manager struct {
	store   adapter.PointerStore
	clock   clock.Clock
	delay   time.Duration
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu         sync.Mutex
	timer      clock.Timer
	pendingKey string
	pendingID  string
	written    map[string]string // key → last successfully written cart id

	writeMu sync.Mutex // serializes store writes
}

// Option configures a Manager.
type Option func(*Manager)

// WithDelay overrides the debounce window.
func WithDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithMetrics records write results.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// NewManager creates a Manager writing to store on clk.
func NewManager(store adapter.PointerStore, clk clock.Clock, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		clock:   clk,
		delay:   DefaultDelay,
		logger:  logger,
		written: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Schedule queues a write of cartID under key after the debounce window.
// A later Schedule before the window elapses replaces the value and restarts
// the window.
func (m *Manager) Schedule(key, cartID string) {
	if key == "" || cartID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	if m.written[key] == cartID {
		return
	}
	m.pendingKey, m.pendingID = key, cartID
	m.timer = m.clock.AfterFunc(m.delay, m.fire)
}

// Flush writes cartID under key now, dropping any pending scheduled write.
// Used when the caller needs the pointer durable before navigating away.
func (m *Manager) Flush(ctx context.Context, key, cartID string) model.Outcome {
	if key == "" || cartID == "" {
		return model.Outcome{Kind: model.OutcomeLocalOnly, CartID: cartID}
	}

	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()

	return m.write(ctx, key, cartID)
}

// CancelPending drops a scheduled write without performing it.
func (m *Manager) CancelPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// Pending reports whether a write is scheduled.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

func (m *Manager) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.pendingKey, m.pendingID = "", ""
}

func (m *Manager) fire() {
	m.mu.Lock()
	key, cartID := m.pendingKey, m.pendingID
	m.timer = nil
	m.pendingKey, m.pendingID = "", ""
	m.mu.Unlock()

	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	m.write(ctx, key, cartID)
}

func (m *Manager) write(ctx context.Context, key, cartID string) model.Outcome {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	last := m.written[key]
	m.mu.Unlock()
	if last == cartID {
		return model.Outcome{Kind: model.OutcomeApplied, CartID: cartID}
	}

	if err := m.store.SetPointer(ctx, key, cartID); err != nil {
		m.logger.Warn("failed to persist cart pointer",
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()),
		)
		m.metrics.PointerWrite("error")
		return model.Outcome{Kind: model.OutcomeTransient, CartID: cartID, Err: err}
	}

	m.mu.Lock()
	m.written[key] = cartID
	m.mu.Unlock()
	m.metrics.PointerWrite("ok")
	m.logger.Debug("cart pointer persisted", slog.String("cart_id", cartID))
	return model.Outcome{Kind: model.OutcomeApplied, CartID: cartID}
}
