package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cartsync/internal/model"
	"cartsync/internal/transport"
)

// =============================================================================
// SHOPIFY STOREFRONT API CLIENT
// =============================================================================
//
// The Storefront API is a single GraphQL endpoint per shop and API version:
//
//   POST https://{shop}/api/{version}/graphql.json
//   X-Shopify-Storefront-Access-Token: {public token}
//
// Transport failures and non-2xx responses map to model.APIError the same way
// the other platform clients do. GraphQL-level errors arrive with HTTP 200 and
// are inspected separately: top-level "errors" (throttling, bad query) and
// per-mutation "userErrors" (invalid merchandise, quantity rules).
// =============================================================================

const (
	// DefaultAPIVersion is the Storefront API version used when none is configured.
	DefaultAPIVersion = "2025-01"

	userAgent = "cartsync/1.0"

	tokenHeader = "X-Shopify-Storefront-Access-Token"
)

// Client is the Shopify Storefront API HTTP client.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (tests point it at httptest).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoint overrides the GraphQL endpoint URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// NewClient creates a client for shop ("my-store.myshopify.com" or a full
// https URL). fingerprint enables the Chrome TLS transport.
func NewClient(shop, token, apiVersion string, fingerprint bool, opts ...Option) *Client {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	base := strings.TrimRight(shop, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	c := &Client{
		httpClient: transport.NewClient(30*time.Second, fingerprint),
		endpoint:   fmt.Sprintf("%s/api/%s/graphql.json", base, apiVersion),
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// === GraphQL ===

// query runs a GraphQL document and decodes "data" into result.
func (c *Client) query(ctx context.Context, document string, variables map[string]any, result any) error {
	req, err := c.newRequest(ctx, &graphQLRequest{Query: document, Variables: variables})
	if err != nil {
		return fmt.Errorf("creating graphql request: %w", err)
	}

	var resp graphQLResponse
	if err := c.do(req, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return graphQLError(resp.Errors)
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("parsing graphql data: %w", err)
		}
	}
	return nil
}

// === HTTP Helpers ===

func (c *Client) newRequest(ctx context.Context, body any) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(tokenHeader, c.token)

	return req, nil
}

// do executes the request and decodes the response.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("Shopify", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.parseError(resp.StatusCode, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}

	return nil
}

// parseError converts HTTP-level Storefront errors to model.APIError.
func (c *Client) parseError(statusCode int, body []byte) error {
	var resp graphQLResponse
	json.Unmarshal(body, &resp) // Best effort parse

	msg := ""
	if len(resp.Errors) > 0 {
		msg = resp.Errors[0].Message
	}

	switch statusCode {
	case 401, 403:
		return model.NewUnauthorizedError("Shopify storefront token rejected")
	case 404:
		return model.NewNotFoundError("shop")
	case 429:
		return model.NewRateLimitError("Shopify")
	case 400:
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		return model.NewUpstreamError("Shopify", fmt.Errorf("status %d: %s", statusCode, msg))
	}
}

// graphQLError maps top-level GraphQL errors. Throttling is reported with
// HTTP 200 and extensions.code THROTTLED.
func graphQLError(errs []gqlError) error {
	for _, e := range errs {
		if e.Extensions.Code == "THROTTLED" {
			return model.NewRateLimitError("Shopify")
		}
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return model.NewUpstreamError("Shopify", fmt.Errorf("graphql: %s", strings.Join(msgs, "; ")))
}

// userErrorsToError maps mutation userErrors to a validation error.
// Returns nil when there are none.
func userErrorsToError(errs []userError) error {
	if len(errs) == 0 {
		return nil
	}
	field := "cart"
	if len(errs[0].Field) > 0 {
		field = strings.Join(errs[0].Field, ".")
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	if errs[0].Code == "INVALID" && strings.Contains(field, "cartId") {
		return model.NewNotFoundError("cart")
	}
	return model.NewValidationError(field, strings.Join(msgs, "; "))
}
