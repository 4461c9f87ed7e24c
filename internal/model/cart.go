// Package model defines the cart data structures shared by the sync engine,
// the remote cart services and the HTTP surface.
package model

import (
	"github.com/shopspring/decimal"
)

// === Local Cart ===

// CartItem is one line of the locally held cart.
// Identity is the normalized VariantID; two items whose ids normalize to the
// same value are the same item.
type CartItem struct {
	VariantID         string          `json:"variant_id" toml:"variant_id"`
	Title             string          `json:"title" toml:"title"`
	UnitPrice         decimal.Decimal `json:"unit_price" toml:"unit_price"`
	Currency          string          `json:"currency,omitempty" toml:"currency,omitempty"`
	Quantity          int             `json:"quantity" toml:"quantity"`
	ImageRef          string          `json:"image_ref,omitempty" toml:"image_ref,omitempty"`
	IsAvailable       bool            `json:"is_available" toml:"is_available"`
	QuantityAvailable *int            `json:"quantity_available,omitempty" toml:"quantity_available,omitempty"` // nil = unknown
	ColorOption       string          `json:"color_option,omitempty" toml:"color_option,omitempty"`
	VariantLabel      string          `json:"variant_label,omitempty" toml:"variant_label,omitempty"`
	ProductHandle     string          `json:"product_handle,omitempty" toml:"product_handle,omitempty"`
}

// Key returns the normalized identity of the item.
func (i CartItem) Key() string {
	return NormalizeID(i.VariantID)
}

// LineTotal returns UnitPrice × Quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return LineTotal(i.UnitPrice, i.Quantity)
}

// LocalCart is the state held by the Local Cart Store.
// Revision is strictly increasing for the lifetime of the store.
type LocalCart struct {
	Items        []CartItem `json:"items"`
	RemoteCartID string     `json:"remote_cart_id,omitempty"`
	Revision     int64      `json:"revision"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c LocalCart) Clone() LocalCart {
	out := LocalCart{RemoteCartID: c.RemoteCartID, Revision: c.Revision}
	out.Items = CloneItems(c.Items)
	return out
}

// Total sums line totals. Items are assumed to share one currency.
func (c LocalCart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// ItemCount sums quantities across lines.
func (c LocalCart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Currency returns the currency of the first priced item, or "".
func (c LocalCart) Currency() string {
	for _, item := range c.Items {
		if item.Currency != "" {
			return item.Currency
		}
	}
	return ""
}

// CloneItems copies a slice of items including the QuantityAvailable pointers.
func CloneItems(items []CartItem) []CartItem {
	if items == nil {
		return []CartItem{}
	}
	out := make([]CartItem, len(items))
	for i, item := range items {
		if item.QuantityAvailable != nil {
			qa := *item.QuantityAvailable
			item.QuantityAvailable = &qa
		}
		out[i] = item
	}
	return out
}

// === Remote Cart ===

// RemoteCart is the authoritative cart held by the commerce backend.
// Always re-fetched before reconciliation; never trusted from a cache.
type RemoteCart struct {
	ID            string        `json:"id"`
	Lines         []RemoteLine  `json:"lines"`
	BuyerIdentity BuyerIdentity `json:"buyer_identity"`
	CheckoutURL   string        `json:"checkout_url,omitempty"`
}

// RemoteLine is one line of the remote cart.
// LineID is the backend's handle for update/remove calls.
type RemoteLine struct {
	LineID      string       `json:"line_id"`
	VariantID   string       `json:"variant_id"`
	Quantity    int          `json:"quantity"`
	Merchandise *Merchandise `json:"merchandise,omitempty"`
}

// Merchandise is the variant metadata a backend reports alongside a line.
// Lets a cart pick up lines added from another device with enough detail to render.
type Merchandise struct {
	Title             string          `json:"title"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Currency          string          `json:"currency,omitempty"`
	ImageRef          string          `json:"image_ref,omitempty"`
	IsAvailable       bool            `json:"is_available"`
	QuantityAvailable *int            `json:"quantity_available,omitempty"`
	ColorOption       string          `json:"color_option,omitempty"`
	VariantLabel      string          `json:"variant_label,omitempty"`
	ProductHandle     string          `json:"product_handle,omitempty"`
}

// LineInput is a variant/quantity pair sent to a backend when adding lines.
type LineInput struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// LineUpdate sets the quantity of an existing remote line.
type LineUpdate struct {
	LineID   string `json:"line_id"`
	Quantity int    `json:"quantity"`
}

// ItemFromLine builds a local item from a remote line's merchandise.
// Lines without merchandise produce an item carrying only id and quantity.
func ItemFromLine(line RemoteLine) CartItem {
	item := CartItem{
		VariantID:   line.VariantID,
		Quantity:    line.Quantity,
		IsAvailable: true,
	}
	if m := line.Merchandise; m != nil {
		item.Title = m.Title
		item.UnitPrice = m.UnitPrice
		item.Currency = m.Currency
		item.ImageRef = m.ImageRef
		item.IsAvailable = m.IsAvailable
		item.QuantityAvailable = m.QuantityAvailable
		item.ColorOption = m.ColorOption
		item.VariantLabel = m.VariantLabel
		item.ProductHandle = m.ProductHandle
	}
	return item
}

// MergeCanonical produces the local item list for a canonical remote cart.
// Remote quantities and ordering win. Known items keep their local metadata
// (refreshed with any stock and price data the backend reports); unknown
// lines are built from merchandise. Local items absent remotely are dropped.
func MergeCanonical(local []CartItem, lines []RemoteLine) []CartItem {
	byKey := make(map[string]CartItem, len(local))
	for _, item := range local {
		byKey[item.Key()] = item
	}

	out := make([]CartItem, 0, len(lines))
	seen := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		key := NormalizeID(line.VariantID)
		if idx, dup := seen[key]; dup {
			out[idx].Quantity += line.Quantity
			continue
		}

		item, known := byKey[key]
		if !known {
			item = ItemFromLine(line)
		} else {
			item.Quantity = line.Quantity
			if m := line.Merchandise; m != nil {
				item.IsAvailable = m.IsAvailable
				item.QuantityAvailable = m.QuantityAvailable
				if !m.UnitPrice.IsZero() {
					item.UnitPrice = m.UnitPrice
				}
				if item.Title == "" {
					item.Title = m.Title
				}
				if item.Currency == "" {
					item.Currency = m.Currency
				}
			}
		}
		seen[key] = len(out)
		out = append(out, item)
	}
	return CloneItems(out)
}
