// Package shopify implements adapter.CartService on the Shopify Storefront
// GraphQL API.
package shopify

import (
	"context"
	"fmt"

	"cartsync/internal/adapter"
	"cartsync/internal/model"
)

// =============================================================================
// SHOPIFY ADAPTER
// =============================================================================
//
// Storefront carts are addressed by their gid ("gid://shopify/Cart/<token>?key=").
// The id is passed through untouched; comparison elsewhere uses
// model.NormalizeID.
//
// A cart that expired or was completed comes back as `cart: null` from the
// cart query and as a userError on cartId from mutations; both become
// model.ErrNotFound so the engine re-resolves.
// =============================================================================

// Config holds Shopify-specific adapter configuration.
type Config struct {
	StoreURL    string // shop domain, e.g. "my-store.myshopify.com"
	Token       string // Storefront API public access token
	APIVersion  string // defaults to DefaultAPIVersion
	Fingerprint bool   // Chrome TLS fingerprint
}

// Adapter implements adapter.CartService for Shopify stores.
type Adapter struct {
	client *Client
}

// New creates a Shopify adapter.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("Shopify store URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("Shopify storefront token is required")
	}
	return &Adapter{
		client: NewClient(cfg.StoreURL, cfg.Token, cfg.APIVersion, cfg.Fingerprint, opts...),
	}, nil
}

func (a *Adapter) CreateCart(ctx context.Context, lines []model.LineInput, identity model.BuyerIdentity) (*model.RemoteCart, error) {
	input := cartInput{Lines: toLineInputs(lines)}
	if bi := toBuyerIdentityInput(identity); bi != nil {
		input.BuyerIdentity = bi
	}

	var data cartCreateData
	if err := a.client.query(ctx, mutationCartCreate, map[string]any{"input": input}, &data); err != nil {
		return nil, fmt.Errorf("cartCreate: %w", err)
	}
	return payloadCart(data.Payload)
}

func (a *Adapter) GetCart(ctx context.Context, cartID string) (*model.RemoteCart, error) {
	var data cartQueryData
	if err := a.client.query(ctx, queryCart, map[string]any{"id": cartID}, &data); err != nil {
		return nil, fmt.Errorf("cart: %w", err)
	}
	if data.Cart == nil {
		return nil, model.NewNotFoundError("cart")
	}
	return toRemoteCart(data.Cart), nil
}

func (a *Adapter) AddLines(ctx context.Context, cartID string, lines []model.LineInput) (*model.RemoteCart, error) {
	var data cartLinesAddData
	vars := map[string]any{"cartId": cartID, "lines": toLineInputs(lines)}
	if err := a.client.query(ctx, mutationCartLinesAdd, vars, &data); err != nil {
		return nil, fmt.Errorf("cartLinesAdd: %w", err)
	}
	return payloadCart(data.Payload)
}

func (a *Adapter) UpdateLines(ctx context.Context, cartID string, updates []model.LineUpdate) (*model.RemoteCart, error) {
	in := make([]cartLineUpdateInput, 0, len(updates))
	for _, u := range updates {
		in = append(in, cartLineUpdateInput{ID: u.LineID, Quantity: u.Quantity})
	}

	var data cartLinesUpdateData
	vars := map[string]any{"cartId": cartID, "lines": in}
	if err := a.client.query(ctx, mutationCartLinesUpdate, vars, &data); err != nil {
		return nil, fmt.Errorf("cartLinesUpdate: %w", err)
	}
	return payloadCart(data.Payload)
}

func (a *Adapter) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*model.RemoteCart, error) {
	var data cartLinesRemoveData
	vars := map[string]any{"cartId": cartID, "lineIds": lineIDs}
	if err := a.client.query(ctx, mutationCartLinesRemove, vars, &data); err != nil {
		return nil, fmt.Errorf("cartLinesRemove: %w", err)
	}
	return payloadCart(data.Payload)
}

func (a *Adapter) UpdateBuyerIdentity(ctx context.Context, cartID string, identity model.BuyerIdentity) (*model.RemoteCart, error) {
	bi := toBuyerIdentityInput(identity)
	if bi == nil {
		bi = &cartBuyerIdentityInput{}
	}

	var data cartBuyerIdentityUpdateData
	vars := map[string]any{"cartId": cartID, "buyerIdentity": bi}
	if err := a.client.query(ctx, mutationBuyerIdentityUpdate, vars, &data); err != nil {
		return nil, fmt.Errorf("cartBuyerIdentityUpdate: %w", err)
	}
	return payloadCart(data.Payload)
}

// payloadCart checks userErrors and converts the returned cart.
func payloadCart(p mutationPayload) (*model.RemoteCart, error) {
	if err := userErrorsToError(p.UserErrors); err != nil {
		return nil, err
	}
	if p.Cart == nil {
		return nil, model.NewNotFoundError("cart")
	}
	return toRemoteCart(p.Cart), nil
}

var _ adapter.CartService = (*Adapter)(nil)
