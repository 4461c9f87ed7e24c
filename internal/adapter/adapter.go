// Package adapter defines the interfaces the cart sync engine needs from the
// outside world: a remote commerce cart service and a durable pointer store.
// Platform packages (shopify, woocommerce) and store packages (pointerstore)
// provide implementations.
package adapter

import (
	"context"

	"cartsync/internal/model"
)

// CartService abstracts the hosted commerce backend's cart operations.
// Each platform (Shopify, WooCommerce) provides its own implementation.
//
// Mutations return the cart as the backend reports it after the change.
// Implementations map a missing cart to an error wrapping model.ErrNotFound
// and transport failures to model.NewUpstreamError.
type CartService interface {
	// CreateCart creates a new remote cart with optional initial lines.
	// Identity fields that are empty are not attached.
	CreateCart(ctx context.Context, lines []model.LineInput, identity model.BuyerIdentity) (*model.RemoteCart, error)

	// GetCart fetches the current authoritative state of a cart.
	GetCart(ctx context.Context, cartID string) (*model.RemoteCart, error)

	// AddLines adds new lines. Callers only add variants not already present.
	AddLines(ctx context.Context, cartID string, lines []model.LineInput) (*model.RemoteCart, error)

	// UpdateLines sets quantities on existing lines, addressed by line id.
	UpdateLines(ctx context.Context, cartID string, updates []model.LineUpdate) (*model.RemoteCart, error)

	// RemoveLines removes lines by line id.
	RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*model.RemoteCart, error)

	// UpdateBuyerIdentity replaces the buyer identity attached to the cart.
	UpdateBuyerIdentity(ctx context.Context, cartID string, identity model.BuyerIdentity) (*model.RemoteCart, error)
}

// PointerStore maps a customer identity key to the last known remote cart id,
// so the same cart can be found from another device or session.
// Entries are written, never deleted.
type PointerStore interface {
	// GetPointer returns the stored cart id. found is false when no pointer exists.
	GetPointer(ctx context.Context, key string) (cartID string, found bool, err error)

	// SetPointer upserts the cart id for key.
	SetPointer(ctx context.Context, key, cartID string) error
}
