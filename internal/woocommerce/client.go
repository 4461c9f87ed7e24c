package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cartsync/internal/model"
)

// =============================================================================
// NONCE AUTHENTICATION STRATEGY
// =============================================================================
//
// The WooCommerce Store API requires a "nonce" for all mutation operations
// (POST, PUT, DELETE). This is a security measure designed for browser-based
// storefront usage, not server-to-server API calls.
//
// CURRENT STRATEGY: Preflight Every Mutation
//
// Before each mutation batch, we make a GET /cart request to obtain a fresh
// nonce, then immediately use it. No nonce is cached between syncs.
//
// Request flow:
//
//   CreateCart:          GET /cart → POST /batch          (2 calls)
//   AddLines etc.:       GET /cart → POST /batch          (2 calls)
//   GetCart:             POST /cart/update-customer       (1 call)
//
// GetCart reads through a no-op update-customer mutation because GET /cart
// with a Cart-Token header can return an empty or stale cart.
// =============================================================================

// storeAPIPath is the base path for WooCommerce Store API endpoints.
// Must include /wp-json prefix for proper routing.
const storeAPIPath = "/wp-json/wc/store/v1"

// userAgent identifies this client to upstream servers.
// Required: WooCommerce CDN/WAF rate-limits requests without User-Agent.
const userAgent = "cartsync/1.0"

// nonceInfo holds nonce and cart token from a preflight request.
type nonceInfo struct {
	nonce     string
	cartToken string
}

// fetchNonce performs a preflight GET /cart request to obtain a fresh nonce.
// The Store API returns nonce in response headers on every request.
func (c *Client) fetchNonce(ctx context.Context, cartToken string) (*nonceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.storeURL+storeAPIPath+"/cart", nil)
	if err != nil {
		return nil, fmt.Errorf("creating nonce request: %w", err)
	}

	c.setStoreAPIHeaders(req, cartToken, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return nil, c.parseErrorResponse(resp.StatusCode, body)
	}

	nonce := resp.Header.Get("Nonce")
	if nonce == "" {
		return nil, model.NewUpstreamError("WooCommerce",
			fmt.Errorf("no nonce returned from Store API"))
	}

	// Keep our token when we sent one; WooCommerce may echo a stale session.
	returnedToken := cartToken
	if returnedToken == "" {
		returnedToken = resp.Header.Get("Cart-Token")
	}

	return &nonceInfo{
		nonce:     nonce,
		cartToken: returnedToken,
	}, nil
}

// setStoreAPIHeaders sets headers for WooCommerce Store API requests.
// Store API uses Cart-Token for session and Nonce for mutation auth.
func (c *Client) setStoreAPIHeaders(req *http.Request, cartToken, nonce string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	if cartToken != "" {
		req.Header.Set("Cart-Token", cartToken)
	}
	if nonce != "" {
		req.Header.Set("Nonce", nonce)
	}
}

// parseErrorResponse converts WooCommerce error to APIError.
// An expired or foreign Cart-Token is reported as a missing cart whatever the
// status. Other 401/403s (nonce, auth) stay unauthorized so the cart is kept.
func (c *Client) parseErrorResponse(statusCode int, body []byte) error {
	var wcErr WooErrorResponse
	json.Unmarshal(body, &wcErr) // Best effort parse

	if strings.Contains(wcErr.Code, "cart_token") || strings.Contains(wcErr.Code, "invalid_token") {
		return model.NewNotFoundError("cart")
	}

	switch statusCode {
	case 404:
		return model.NewNotFoundError("cart")
	case 401, 403:
		return model.NewUnauthorizedError("WooCommerce authentication failed")
	case 400, 409:
		msg := wcErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	case 429:
		return model.NewRateLimitError("WooCommerce")
	default:
		return model.NewUpstreamError("WooCommerce",
			fmt.Errorf("status %d: %s - %s", statusCode, wcErr.Code, wcErr.Message))
	}
}

// getCartViaMutation fetches cart state using POST /cart/update-customer with
// an empty body, which always returns the session's real cart.
func (c *Client) getCartViaMutation(ctx context.Context, cartToken string) (*WooCartResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.storeURL+storeAPIPath+"/cart/update-customer", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("creating update-customer request: %w", err)
	}

	c.setStoreAPIHeaders(req, cartToken, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading update-customer response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.parseErrorResponse(resp.StatusCode, respBody)
	}

	var cart WooCartResponse
	if err := json.Unmarshal(respBody, &cart); err != nil {
		return nil, fmt.Errorf("parsing cart response: %w", err)
	}

	return &cart, nil
}

// executeBatch dispatches to the configured batch execution strategy and
// returns the cart reported by the last operation.
func (c *Client) executeBatch(ctx context.Context, batch *WooBatchRequest, cartToken string) (*WooCartResponse, error) {
	if batch == nil || len(batch.Requests) == 0 {
		return nil, fmt.Errorf("empty batch request")
	}
	switch c.batchStrategy {
	case BatchStrategySequential:
		return c.executeBatchSequential(ctx, batch, cartToken)
	default:
		return c.executeBatchEndpoint(ctx, batch, cartToken)
	}
}

// executeBatchSequential executes a batch of cart operations one by one,
// chaining the nonce from each response into the next request.
//
// Trade-off: N HTTP calls instead of 1, adding ~50-100ms per operation.
func (c *Client) executeBatchSequential(ctx context.Context, batch *WooBatchRequest, cartToken string) (*WooCartResponse, error) {
	nonceData, err := c.fetchNonce(ctx, cartToken)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}

	currentNonce := nonceData.nonce
	var lastCart *WooCartResponse

	for i, op := range batch.Requests {
		cart, newNonce, err := c.executeCartOperation(ctx, op, nonceData.cartToken, currentNonce)
		if err != nil {
			return nil, fmt.Errorf("operation %d (%s) failed: %w", i, op.Path, err)
		}
		lastCart = cart
		if newNonce != "" {
			currentNonce = newNonce
		}
	}

	return lastCart, nil
}

// =============================================================================
// MULTI BATCH EXECUTION (uses /batch endpoint with per-operation headers)
// =============================================================================

// executeBatchEndpoint executes batch via the WooCommerce /batch endpoint.
//
// The /batch endpoint doesn't propagate parent request headers to
// sub-operations; Cart-Token and Nonce go into each operation's headers.
func (c *Client) executeBatchEndpoint(ctx context.Context, batch *WooBatchRequest, cartToken string) (*WooCartResponse, error) {
	nonceData, err := c.fetchNonce(ctx, cartToken)
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}

	batch.InjectHeaders(map[string]string{
		"Nonce":      nonceData.nonce,
		"Cart-Token": nonceData.cartToken,
	})

	batchJSON, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshaling batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.storeURL+storeAPIPath+"/batch", bytes.NewReader(batchJSON))
	if err != nil {
		return nil, fmt.Errorf("creating batch request: %w", err)
	}

	c.setStoreAPIHeaders(req, nonceData.cartToken, nonceData.nonce)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading batch response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.parseErrorResponse(resp.StatusCode, body)
	}

	var batchResp WooBatchResponse
	if err := json.Unmarshal(body, &batchResp); err != nil {
		return nil, fmt.Errorf("parsing batch response: %w", err)
	}

	var lastCart *WooCartResponse
	for _, result := range batchResp.Responses {
		if result.Status >= 400 {
			return nil, c.parseErrorResponse(result.Status, result.Body)
		}

		var cart WooCartResponse
		if err := json.Unmarshal(result.Body, &cart); err != nil {
			return nil, fmt.Errorf("parsing batch result: %w", err)
		}
		lastCart = &cart
	}

	return lastCart, nil
}

// executeCartOperation executes a single cart operation.
// Returns the cart response and the nonce to use for the next mutation.
func (c *Client) executeCartOperation(ctx context.Context, op WooBatchOperation, cartToken, nonce string) (*WooCartResponse, string, error) {
	path := strings.TrimPrefix(op.Path, "/wc/store/v1")

	var bodyReader io.Reader
	if len(op.Body) > 0 {
		bodyReader = bytes.NewReader(op.Body)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, c.storeURL+storeAPIPath+path, bodyReader)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	c.setStoreAPIHeaders(req, cartToken, nonce)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, "", c.parseErrorResponse(resp.StatusCode, body)
	}

	var cart WooCartResponse
	if err := json.Unmarshal(body, &cart); err != nil {
		return nil, "", fmt.Errorf("parsing cart response: %w", err)
	}

	return &cart, resp.Header.Get("Nonce"), nil
}
