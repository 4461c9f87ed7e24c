package shopify

import (
	"strings"

	"cartsync/internal/model"
)

// toRemoteCart converts a Storefront cart to the engine's view.
func toRemoteCart(c *cart) *model.RemoteCart {
	out := &model.RemoteCart{
		ID:          c.ID,
		CheckoutURL: c.CheckoutURL,
		Lines:       make([]model.RemoteLine, 0, len(c.Lines.Nodes)),
	}
	if c.BuyerIdentity.Email != nil {
		out.BuyerIdentity.Email = *c.BuyerIdentity.Email
	}
	if c.BuyerIdentity.Phone != nil {
		out.BuyerIdentity.Phone = *c.BuyerIdentity.Phone
	}
	for _, l := range c.Lines.Nodes {
		m := toMerchandise(l.Merchandise)
		out.Lines = append(out.Lines, model.RemoteLine{
			LineID:      l.ID,
			VariantID:   l.Merchandise.ID,
			Quantity:    l.Quantity,
			Merchandise: &m,
		})
	}
	return out
}

func toMerchandise(v productVariant) model.Merchandise {
	m := model.Merchandise{
		Title:         v.Product.Title,
		UnitPrice:     model.ParseAmount(v.Price.Amount),
		Currency:      v.Price.CurrencyCode,
		IsAvailable:   v.AvailableForSale,
		ProductHandle: v.Product.Handle,
	}
	if m.Title == "" {
		m.Title = v.Title
	}
	if v.QuantityAvailable != nil {
		qa := *v.QuantityAvailable
		m.QuantityAvailable = &qa
	}
	if v.Image != nil {
		m.ImageRef = v.Image.URL
	}

	// "Default Title" is Shopify's label for single-variant products.
	labels := make([]string, 0, len(v.SelectedOptions))
	for _, o := range v.SelectedOptions {
		if strings.EqualFold(o.Name, "color") || strings.EqualFold(o.Name, "colour") {
			m.ColorOption = o.Value
		}
		if o.Value != "" && o.Value != "Default Title" {
			labels = append(labels, o.Value)
		}
	}
	if len(labels) > 0 {
		m.VariantLabel = strings.Join(labels, " / ")
	} else if v.Title != "Default Title" && v.Title != m.Title {
		m.VariantLabel = v.Title
	}
	return m
}

func toLineInputs(lines []model.LineInput) []cartLineInput {
	out := make([]cartLineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, cartLineInput{MerchandiseID: l.VariantID, Quantity: l.Quantity})
	}
	return out
}

// toBuyerIdentityInput returns nil when the identity has no usable field.
func toBuyerIdentityInput(b model.BuyerIdentity) *cartBuyerIdentityInput {
	c := b.Canonical()
	if c.Email == "" && c.Phone == "" {
		return nil
	}
	return &cartBuyerIdentityInput{Email: c.Email, Phone: c.Phone}
}
