package localcache

import (
	"context"
	"sync"
	"time"

	"cartsync/internal/model"
)

// Memory is a process-local Cache.
type Memory struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snap
	out.Items = model.CloneItems(m.snap.Items)
	return out, nil
}

func (m *Memory) SaveCart(ctx context.Context, cart model.LocalCart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Version = FormatVersion
	m.snap.SavedAt = time.Now()
	m.snap.Revision = cart.Revision
	m.snap.RemoteCartID = cart.RemoteCartID
	m.snap.Items = model.CloneItems(cart.Items)
	return nil
}

func (m *Memory) LoadPointer(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.FallbackCartID, nil
}

func (m *Memory) SavePointer(ctx context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.FallbackCartID = cartID
	return nil
}

func (m *Memory) ClearPointer(ctx context.Context) error {
	return m.SavePointer(ctx, "")
}

var _ Cache = (*Memory)(nil)
