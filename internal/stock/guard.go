// Package stock enforces the inventory ceiling on local cart increases.
package stock

import "cartsync/internal/model"

// CanIncrease reports whether item may be raised to requestedQty.
// Unknown availability (nil) never blocks; a known ceiling of zero blocks
// everything; otherwise the request must not exceed the ceiling.
func CanIncrease(item model.CartItem, requestedQty int) bool {
	if item.QuantityAvailable == nil {
		return true
	}
	available := *item.QuantityAvailable
	if available <= 0 {
		return false
	}
	return requestedQty <= available
}

// Guard is the function shape the cart store re-checks under its lock.
type Guard func(item model.CartItem, requestedQty int) bool
