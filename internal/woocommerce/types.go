// Package woocommerce implements adapter.CartService for WooCommerce stores
// using the Store API. All WooCommerce-specific types, transforms, and HTTP
// client logic live here.
package woocommerce

import "encoding/json"

// === WooCommerce API Response Types ===

// WooCartResponse represents WooCommerce Store API cart response.
// Every cart mutation returns this shape.
type WooCartResponse struct {
	Items           []WooCartItem  `json:"items"`
	Totals          WooTotals      `json:"totals"`
	ItemsCount      int            `json:"items_count"`
	BillingAddress  WooAddress     `json:"billing_address"`
	ShippingAddress WooAddress     `json:"shipping_address"`
	Errors          []WooCartError `json:"errors,omitempty"`
}

// WooCartError represents an error in cart state.
type WooCartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WooCartItem represents an item in cart response.
type WooCartItem struct {
	Key               string            `json:"key"` // Cart item key (not numeric ID)
	ID                int               `json:"id"`  // Product or variation ID
	Name              string            `json:"name"`
	Quantity          int               `json:"quantity"`
	LowStockRemaining *int              `json:"low_stock_remaining"` // null unless stock is low
	BackordersAllowed bool              `json:"backorders_allowed"`
	Permalink         string            `json:"permalink"`
	QuantityLimits    WooQuantityLimits `json:"quantity_limits"`
	Prices            WooCartItemPrices `json:"prices"`
	Totals            WooCartItemTotals `json:"totals"`
	Images            []WooImage        `json:"images,omitempty"`
	Variation         []WooVariant      `json:"variation,omitempty"`
}

// WooQuantityLimits are the per-item quantity rules the store enforces.
type WooQuantityLimits struct {
	Minimum  int  `json:"minimum"`
	Maximum  int  `json:"maximum"`
	Editable bool `json:"editable"`
}

// WooCartItemPrices contains price info for a cart item.
type WooCartItemPrices struct {
	Price             string `json:"price"`         // Current unit price in minor units
	RegularPrice      string `json:"regular_price"` // Regular price
	SalePrice         string `json:"sale_price"`    // Sale price if on sale
	CurrencyCode      string `json:"currency_code"`
	CurrencyMinorUnit int    `json:"currency_minor_unit"`
}

// WooCartItemTotals contains totals for a cart item.
type WooCartItemTotals struct {
	LineSubtotal string `json:"line_subtotal"` // price * quantity
	LineTotal    string `json:"line_total"`    // After discounts
}

// WooTotals contains cart totals. Amounts are minor units as strings.
type WooTotals struct {
	CurrencyCode      string `json:"currency_code"`
	CurrencyMinorUnit int    `json:"currency_minor_unit"`
	TotalItems        string `json:"total_items"`
	TotalPrice        string `json:"total_price"`
}

// WooAddress represents a WooCommerce address. Only billing carries email.
type WooAddress struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Address1  string `json:"address_1,omitempty"`
	City      string `json:"city,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// WooImage represents a product image.
type WooImage struct {
	ID   int    `json:"id"`
	Src  string `json:"src"`
	Name string `json:"name"`
	Alt  string `json:"alt"`
}

// WooVariant represents a product variation attribute.
type WooVariant struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// WooErrorResponse represents a WooCommerce API error.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// === Batch API Types ===

// WooBatchRequest is the payload for POST /batch endpoint.
// Combines multiple cart operations into a single request.
type WooBatchRequest struct {
	Requests []WooBatchOperation `json:"requests"`
}

// WooBatchOperation is a single operation within a batch.
// Uses WooCommerce Store API batch format: path, method, body, headers.
// Headers field allows per-operation authentication (Cart-Token, Nonce).
type WooBatchOperation struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// WooBatchResponse is the response from POST /batch endpoint.
type WooBatchResponse struct {
	Responses []WooBatchResult `json:"responses"`
}

// WooBatchResult is a single result within a batch response.
type WooBatchResult struct {
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body"`    // Raw JSON response or error
	Headers WooBatchHeaders `json:"headers"` // Response headers including nonce
}

// WooBatchHeaders contains headers from a batch response.
type WooBatchHeaders struct {
	Nonce     string `json:"Nonce"`
	CartToken string `json:"Cart-Token"`
}
