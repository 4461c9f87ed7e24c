// Package localcache persists a cart session's local cart snapshot and its
// fallback remote cart pointer so a restart resumes where the shopper left off.
package localcache

import (
	"context"
	"time"

	"golang.org/x/mod/semver"

	"cartsync/internal/model"
)

// FormatVersion is the snapshot layout version written by this build.
// Snapshots with a different major version are ignored on load.
const FormatVersion = "v1.1.0"

// Snapshot is the durable form of a cart session.
type Snapshot struct {
	Version        string           `toml:"version"`
	SavedAt        time.Time        `toml:"saved_at"`
	Revision       int64            `toml:"revision"`
	RemoteCartID   string           `toml:"remote_cart_id,omitempty"`
	FallbackCartID string           `toml:"fallback_cart_id,omitempty"`
	Items          []model.CartItem `toml:"items"`
}

// Cart returns the local cart view of the snapshot.
func (s Snapshot) Cart() model.LocalCart {
	return model.LocalCart{
		Items:        model.CloneItems(s.Items),
		RemoteCartID: s.RemoteCartID,
		Revision:     s.Revision,
	}
}

// Cache is the local durable cache of one cart session.
// Load returns a zero Snapshot when nothing is stored.
type Cache interface {
	Load(ctx context.Context) (Snapshot, error)
	SaveCart(ctx context.Context, cart model.LocalCart) error
	LoadPointer(ctx context.Context) (string, error)
	SavePointer(ctx context.Context, cartID string) error
	ClearPointer(ctx context.Context) error
}

// Compatible reports whether a stored snapshot version can be read.
func Compatible(version string) bool {
	if !semver.IsValid(version) {
		return false
	}
	return semver.Major(version) == semver.Major(FormatVersion)
}
