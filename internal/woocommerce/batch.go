package woocommerce

import (
	"encoding/json"

	"cartsync/internal/model"
)

// =============================================================================
// BATCH BUILDER
// =============================================================================
//
// WooCommerce Store API supports batching multiple cart operations in a single
// HTTP request via POST /wc/store/v1/batch. A reconciliation pass (removes,
// quantity updates, adds, customer update) becomes one round-trip.
//
// Batch operations execute sequentially in order. Each operation can succeed
// or fail independently, and the response contains results for all operations.
//
// Example batch request:
//
//	{
//	  "requests": [
//	    {"path": "/cart/remove-item", "method": "POST", "body": {"key": "a1b2"}},
//	    {"path": "/cart/update-item", "method": "POST", "body": {"key": "c3d4", "quantity": 3}},
//	    {"path": "/cart/add-item", "method": "POST", "body": {"id": 123, "quantity": 1}}
//	  ]
//	}
//
// =============================================================================

// BatchBuilder constructs batch requests for WooCommerce Store API.
// Uses fluent API pattern for readability.
type BatchBuilder struct {
	operations []WooBatchOperation
}

// NewBatch creates a new batch builder.
func NewBatch() *BatchBuilder {
	return &BatchBuilder{
		operations: make([]WooBatchOperation, 0),
	}
}

// AddItem adds a product to the cart.
// path: /wc/store/v1/cart/add-item
func (b *BatchBuilder) AddItem(productID, quantity int) *BatchBuilder {
	body := map[string]int{
		"id":       productID,
		"quantity": quantity,
	}
	return b.add("/wc/store/v1/cart/add-item", body)
}

// UpdateCustomer sets the billing contact used as the cart's buyer identity.
// WooCommerce keeps email and phone on the billing address.
// path: /wc/store/v1/cart/update-customer
func (b *BatchBuilder) UpdateCustomer(identity model.BuyerIdentity) *BatchBuilder {
	c := identity.Canonical()
	body := map[string]any{
		"billing_address": &WooAddress{Email: c.Email, Phone: c.Phone},
	}
	return b.add("/wc/store/v1/cart/update-customer", body)
}

// RemoveItem removes an item from the cart by its cart item key.
// The key is a hash assigned by WooCommerce (found in cart.items[].key).
// path: /wc/store/v1/cart/remove-item
func (b *BatchBuilder) RemoveItem(cartItemKey string) *BatchBuilder {
	if cartItemKey == "" {
		return b
	}
	return b.add("/wc/store/v1/cart/remove-item", map[string]string{"key": cartItemKey})
}

// UpdateItemQuantity updates the quantity of an existing cart item.
// path: /wc/store/v1/cart/update-item
func (b *BatchBuilder) UpdateItemQuantity(cartItemKey string, quantity int) *BatchBuilder {
	if cartItemKey == "" {
		return b
	}
	body := map[string]any{
		"key":      cartItemKey,
		"quantity": quantity,
	}
	return b.add("/wc/store/v1/cart/update-item", body)
}

func (b *BatchBuilder) add(path string, body any) *BatchBuilder {
	bodyJSON, _ := json.Marshal(body)
	b.operations = append(b.operations, WooBatchOperation{
		Path:   path,
		Method: "POST",
		Body:   bodyJSON,
	})
	return b
}

// Build returns the batch request ready for execution.
// Returns nil if no operations were added.
func (b *BatchBuilder) Build() *WooBatchRequest {
	if len(b.operations) == 0 {
		return nil
	}
	return &WooBatchRequest{
		Requests: b.operations,
	}
}

// HasOperations returns true if any operations have been added.
func (b *BatchBuilder) HasOperations() bool {
	return len(b.operations) > 0
}

// OperationCount returns the number of operations in the batch.
func (b *BatchBuilder) OperationCount() int {
	return len(b.operations)
}

// =============================================================================
// BATCH HEADER INJECTION
// =============================================================================

// InjectHeaders adds the given headers to all operations in the batch.
// WooCommerce batch endpoint requires per-operation headers for auth to work.
func (b *WooBatchRequest) InjectHeaders(headers map[string]string) {
	for i := range b.Requests {
		if b.Requests[i].Headers == nil {
			b.Requests[i].Headers = make(map[string]string)
		}
		for k, v := range headers {
			b.Requests[i].Headers[k] = v
		}
	}
}
