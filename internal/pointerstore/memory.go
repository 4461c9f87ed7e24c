// Package pointerstore implements adapter.PointerStore on Firestore, Redis
// and process memory.
package pointerstore

import (
	"context"
	"sync"

	"cartsync/internal/adapter"
)

// Memory keeps pointers in process memory. Used in development and tests;
// pointers do not survive restarts and are not shared between instances.
type Memory struct {
	mu       sync.RWMutex
	pointers map[string]string
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{pointers: make(map[string]string)}
}

func (m *Memory) GetPointer(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.pointers[key]
	return id, ok, nil
}

func (m *Memory) SetPointer(ctx context.Context, key, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pointers[key] = cartID
	return nil
}

var _ adapter.PointerStore = (*Memory)(nil)
