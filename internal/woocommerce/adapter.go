package woocommerce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cartsync/internal/adapter"
	"cartsync/internal/model"
	"cartsync/internal/transport"
)

// =============================================================================
// WOOCOMMERCE CART SERVICE
// =============================================================================
//
// A WooCommerce cart lives in a Store API session identified by its
// Cart-Token. The remote cart id is that token wrapped in a gid:
//
//   gid://{store domain}/Cart/{cart_token}
//
// Line ids are the cart item keys WooCommerce assigns; variant ids are the
// numeric product/variation ids, so "gid://.../ProductVariant/123" and "123"
// address the same item.
// =============================================================================

// BatchStrategy controls how batch operations are executed.
type BatchStrategy string

const (
	// BatchStrategyMulti uses the /batch endpoint with per-operation headers.
	// Faster (1 HTTP call) - the default and recommended strategy.
	BatchStrategyMulti BatchStrategy = "multi"

	// BatchStrategySequential executes operations one by one with nonce chaining.
	// Slower (N HTTP calls) but useful as fallback if batch endpoint has issues.
	BatchStrategySequential BatchStrategy = "sequential"
)

// Config holds WooCommerce-specific adapter configuration.
type Config struct {
	StoreURL      string
	BatchStrategy BatchStrategy // Default: multi
	Fingerprint   bool          // Chrome TLS fingerprint
	HTTPClient    *http.Client  // overrides the transport (tests)
}

// Client implements adapter.CartService for WooCommerce stores using the Store API.
// Requires WooCommerce Blocks plugin (included in WC 6.9+) for Store API endpoints.
type Client struct {
	httpClient    *http.Client
	storeURL      string
	storeDomain   string
	batchStrategy BatchStrategy
}

// generateCartToken creates a random cart token for a new session.
// Without one, WooCommerce may reuse a session and pollute the new cart.
func generateCartToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// New creates a WooCommerce client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	u, err := url.Parse(cfg.StoreURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid store URL %q", cfg.StoreURL)
	}

	strategy := cfg.BatchStrategy
	if strategy == "" {
		strategy = BatchStrategyMulti
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = transport.NewClient(30*time.Second, cfg.Fingerprint)
	}

	return &Client{
		httpClient:    hc,
		storeURL:      strings.TrimSuffix(cfg.StoreURL, "/"),
		storeDomain:   u.Host,
		batchStrategy: strategy,
	}, nil
}

// CreateCart starts a fresh Store API session and fills it in one batch.
func (c *Client) CreateCart(ctx context.Context, lines []model.LineInput, identity model.BuyerIdentity) (*model.RemoteCart, error) {
	token := generateCartToken()

	b := NewBatch()
	if err := addLines(b, lines); err != nil {
		return nil, err
	}
	if identity.IsValid() {
		b.UpdateCustomer(identity)
	}

	var (
		cart *WooCartResponse
		err  error
	)
	if b.HasOperations() {
		cart, err = c.executeBatch(ctx, b.Build(), token)
	} else {
		cart, err = c.getCartViaMutation(ctx, token)
	}
	if err != nil {
		return nil, fmt.Errorf("creating cart: %w", err)
	}
	return c.toRemoteCart(cart, token), nil
}

func (c *Client) GetCart(ctx context.Context, cartID string) (*model.RemoteCart, error) {
	token, err := c.token(cartID)
	if err != nil {
		return nil, err
	}
	cart, err := c.getCartViaMutation(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.toRemoteCart(cart, token), nil
}

func (c *Client) AddLines(ctx context.Context, cartID string, lines []model.LineInput) (*model.RemoteCart, error) {
	b := NewBatch()
	if err := addLines(b, lines); err != nil {
		return nil, err
	}
	return c.mutate(ctx, cartID, b)
}

func (c *Client) UpdateLines(ctx context.Context, cartID string, updates []model.LineUpdate) (*model.RemoteCart, error) {
	b := NewBatch()
	for _, u := range updates {
		if u.Quantity <= 0 {
			b.RemoveItem(u.LineID)
			continue
		}
		b.UpdateItemQuantity(u.LineID, u.Quantity)
	}
	return c.mutate(ctx, cartID, b)
}

func (c *Client) RemoveLines(ctx context.Context, cartID string, lineIDs []string) (*model.RemoteCart, error) {
	b := NewBatch()
	for _, key := range lineIDs {
		b.RemoveItem(key)
	}
	return c.mutate(ctx, cartID, b)
}

func (c *Client) UpdateBuyerIdentity(ctx context.Context, cartID string, identity model.BuyerIdentity) (*model.RemoteCart, error) {
	return c.mutate(ctx, cartID, NewBatch().UpdateCustomer(identity))
}

func (c *Client) mutate(ctx context.Context, cartID string, b *BatchBuilder) (*model.RemoteCart, error) {
	token, err := c.token(cartID)
	if err != nil {
		return nil, err
	}
	if !b.HasOperations() {
		return c.GetCart(ctx, cartID)
	}
	cart, err := c.executeBatch(ctx, b.Build(), token)
	if err != nil {
		return nil, err
	}
	return c.toRemoteCart(cart, token), nil
}

func (c *Client) token(cartID string) (string, error) {
	token, err := ParseCartID(cartID)
	if err != nil {
		return "", model.NewValidationError("cart_id", err.Error())
	}
	return token, nil
}

// addLines queues add-item operations; variant ids must resolve to a numeric
// product id.
func addLines(b *BatchBuilder, lines []model.LineInput) error {
	for _, l := range lines {
		id, err := strconv.Atoi(model.NormalizeID(l.VariantID))
		if err != nil || id <= 0 {
			return model.NewValidationError("variant_id", fmt.Sprintf("%q is not a WooCommerce product id", l.VariantID))
		}
		b.AddItem(id, l.Quantity)
	}
	return nil
}

var _ adapter.CartService = (*Client)(nil)
