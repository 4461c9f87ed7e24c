package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	"cartsync/internal/model"
)

// Wire shapes shared by REST and MCP. Money is rendered as decimal strings.

type cartView struct {
	Items        []itemView `json:"items"`
	RemoteCartID string     `json:"remote_cart_id,omitempty"`
	Revision     int64      `json:"revision"`
	Total        string     `json:"total"`
	Currency     string     `json:"currency,omitempty"`
	ItemCount    int        `json:"item_count"`
}

type itemView struct {
	VariantID         string `json:"variant_id"`
	Title             string `json:"title"`
	UnitPrice         string `json:"unit_price"`
	LineTotal         string `json:"line_total"`
	Currency          string `json:"currency,omitempty"`
	Quantity          int    `json:"quantity"`
	ImageRef          string `json:"image_ref,omitempty"`
	IsAvailable       bool   `json:"is_available"`
	QuantityAvailable *int   `json:"quantity_available,omitempty"`
	ColorOption       string `json:"color_option,omitempty"`
	VariantLabel      string `json:"variant_label,omitempty"`
	ProductHandle     string `json:"product_handle,omitempty"`
}

type outcomeView struct {
	Kind     string `json:"kind"`
	CartID   string `json:"cart_id,omitempty"`
	Revision int64  `json:"revision"`
	Via      string `json:"via,omitempty"`
	Error    string `json:"error,omitempty"`
}

// cartResult is the response of every cart operation.
type cartResult struct {
	Outcome     *outcomeView `json:"outcome,omitempty"`
	Cart        cartView     `json:"cart"`
	CheckoutURL string       `json:"checkout_url,omitempty"`
}

func toCartView(c model.LocalCart) cartView {
	items := make([]itemView, len(c.Items))
	for i, it := range c.Items {
		items[i] = itemView{
			VariantID:         it.VariantID,
			Title:             it.Title,
			UnitPrice:         it.UnitPrice.StringFixed(2),
			LineTotal:         it.LineTotal().StringFixed(2),
			Currency:          it.Currency,
			Quantity:          it.Quantity,
			ImageRef:          it.ImageRef,
			IsAvailable:       it.IsAvailable,
			QuantityAvailable: it.QuantityAvailable,
			ColorOption:       it.ColorOption,
			VariantLabel:      it.VariantLabel,
			ProductHandle:     it.ProductHandle,
		}
	}
	return cartView{
		Items:        items,
		RemoteCartID: c.RemoteCartID,
		Revision:     c.Revision,
		Total:        c.Total().StringFixed(2),
		Currency:     c.Currency(),
		ItemCount:    c.ItemCount(),
	}
}

// toOutcomeView renders o. Remote error details stay in the logs.
func toOutcomeView(o model.Outcome) *outcomeView {
	v := &outcomeView{
		Kind:     string(o.Kind),
		CartID:   o.CartID,
		Revision: o.Revision,
		Via:      string(o.Via),
	}
	if o.Kind == model.OutcomeRejected && o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

// === Requests ===

// itemInput is the add-item payload.
type itemInput struct {
	VariantID         string `json:"variant_id" jsonschema:"product variant ID"`
	Title             string `json:"title,omitempty" jsonschema:"display title"`
	UnitPrice         string `json:"unit_price,omitempty" jsonschema:"unit price as a decimal string, e.g. 12.50"`
	Currency          string `json:"currency,omitempty" jsonschema:"ISO 4217 currency code"`
	Quantity          int    `json:"quantity" jsonschema:"quantity to add"`
	ImageRef          string `json:"image_ref,omitempty" jsonschema:"image URL"`
	IsAvailable       *bool  `json:"is_available,omitempty" jsonschema:"whether the variant can be purchased (default true)"`
	QuantityAvailable *int   `json:"quantity_available,omitempty" jsonschema:"stock on hand, omitted when unknown"`
	ColorOption       string `json:"color_option,omitempty" jsonschema:"color option value"`
	VariantLabel      string `json:"variant_label,omitempty" jsonschema:"variant label"`
	ProductHandle     string `json:"product_handle,omitempty" jsonschema:"product handle"`
}

// toItem validates the payload and builds the cart item.
func (in itemInput) toItem() (model.CartItem, error) {
	if strings.TrimSpace(in.VariantID) == "" {
		return model.CartItem{}, model.NewValidationError("variant_id", "required")
	}
	price := decimal.Zero
	if in.UnitPrice != "" {
		p, err := decimal.NewFromString(in.UnitPrice)
		if err != nil {
			return model.CartItem{}, model.NewValidationError("unit_price", "not a decimal number")
		}
		if p.IsNegative() {
			return model.CartItem{}, model.NewValidationError("unit_price", "must not be negative")
		}
		price = p
	}
	available := true
	if in.IsAvailable != nil {
		available = *in.IsAvailable
	}
	return model.CartItem{
		VariantID:         strings.TrimSpace(in.VariantID),
		Title:             in.Title,
		UnitPrice:         price,
		Currency:          strings.ToUpper(in.Currency),
		Quantity:          in.Quantity,
		ImageRef:          in.ImageRef,
		IsAvailable:       available,
		QuantityAvailable: in.QuantityAvailable,
		ColorOption:       in.ColorOption,
		VariantLabel:      in.VariantLabel,
		ProductHandle:     in.ProductHandle,
	}, nil
}

// quantityInput is the set-quantity payload.
type quantityInput struct {
	VariantID string `json:"variant_id" jsonschema:"product variant ID"`
	Quantity  int    `json:"quantity" jsonschema:"new quantity; 0 or less removes the line"`
}
