package woocommerce

import (
	"fmt"
	"strconv"
	"strings"

	"cartsync/internal/model"
)

// =============================================================================
// WOOCOMMERCE → CART TRANSFORMATION
// =============================================================================
//
// Store API prices are minor-unit integer strings ("8900" with
// currency_minor_unit 2 is 89.00). Stock is only reported when low:
// low_stock_remaining is null for well-stocked items and for items without
// managed stock.
// =============================================================================

// toRemoteCart converts a Store API cart to the engine's view.
func (c *Client) toRemoteCart(cart *WooCartResponse, token string) *model.RemoteCart {
	out := &model.RemoteCart{
		ID:    BuildCartID(c.storeDomain, token),
		Lines: []model.RemoteLine{},
	}
	if cart == nil {
		return out
	}

	out.BuyerIdentity = model.BuyerIdentity{
		Email: cart.BillingAddress.Email,
		Phone: cart.BillingAddress.Phone,
	}
	out.CheckoutURL = buildShareableCheckoutURL(c.storeURL, cart)

	for i := range cart.Items {
		item := &cart.Items[i]
		m := transformCartItem(item, cart.Totals)
		out.Lines = append(out.Lines, model.RemoteLine{
			LineID:      item.Key,
			VariantID:   strconv.Itoa(item.ID),
			Quantity:    item.Quantity,
			Merchandise: &m,
		})
	}
	return out
}

// transformCartItem extracts display metadata from a cart item.
func transformCartItem(item *WooCartItem, totals WooTotals) model.Merchandise {
	currency := item.Prices.CurrencyCode
	minor := item.Prices.CurrencyMinorUnit
	if currency == "" {
		currency = totals.CurrencyCode
		minor = totals.CurrencyMinorUnit
	}

	m := model.Merchandise{
		Title:         item.Name,
		UnitPrice:     model.ParseMinorUnits(item.Prices.Price, minor),
		Currency:      currency,
		ImageRef:      firstImageURL(item.Images),
		IsAvailable:   true,
		ProductHandle: productHandle(item.Permalink),
	}

	if item.LowStockRemaining != nil && !item.BackordersAllowed {
		remaining := *item.LowStockRemaining
		m.QuantityAvailable = &remaining
		m.IsAvailable = remaining > 0
	}

	labels := make([]string, 0, len(item.Variation))
	for _, v := range item.Variation {
		attr := strings.ToLower(v.Attribute)
		if strings.Contains(attr, "color") || strings.Contains(attr, "colour") {
			m.ColorOption = v.Value
		}
		if v.Value != "" {
			labels = append(labels, v.Value)
		}
	}
	m.VariantLabel = strings.Join(labels, " / ")
	return m
}

// firstImageURL extracts the first image URL from a slice, or empty string if none.
func firstImageURL(images []WooImage) string {
	if len(images) > 0 {
		return images[0].Src
	}
	return ""
}

// productHandle returns the product slug from a permalink
// ("https://shop.test/product/hoodie/" → "hoodie").
func productHandle(permalink string) string {
	if permalink == "" {
		return ""
	}
	return model.NormalizeID(permalink)
}

// buildShareableCheckoutURL creates a WooCommerce shareable checkout URL.
// Format: /checkout-link/?products=ID:QTY,ID:QTY
// The Store API session is bound to the Cart-Token, which a browser does not
// carry; the link rebuilds the cart in the browser session and redirects to
// checkout in one step.
func buildShareableCheckoutURL(storeURL string, cart *WooCartResponse) string {
	if cart == nil || len(cart.Items) == 0 {
		return storeURL + "/checkout"
	}

	products := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		products = append(products, fmt.Sprintf("%d:%d", item.ID, item.Quantity))
	}

	return fmt.Sprintf("%s/checkout-link/?products=%s", storeURL, strings.Join(products, ","))
}

// === Cart ID Functions ===

// BuildCartID creates a gid:// format ID for a cart token.
// Format: gid://{domain}/Cart/{cart_token}
func BuildCartID(domain string, cartToken string) string {
	return fmt.Sprintf("gid://%s/Cart/%s", domain, cartToken)
}

// ParseCartID extracts the cart token from a cart ID. A bare token is
// accepted as is.
func ParseCartID(cartID string) (string, error) {
	if cartID == "" {
		return "", fmt.Errorf("empty cart ID")
	}
	if !strings.HasPrefix(cartID, "gid://") {
		if strings.ContainsAny(cartID, "/:?# ") {
			return "", fmt.Errorf("invalid cart token %q", cartID)
		}
		return cartID, nil
	}

	rest := strings.TrimPrefix(cartID, "gid://")
	slashIdx := strings.Index(rest, "/")
	if slashIdx == -1 {
		return "", fmt.Errorf("invalid ID format: missing path")
	}
	path := rest[slashIdx+1:]
	if !strings.HasPrefix(path, "Cart/") {
		return "", fmt.Errorf("invalid ID format: not a cart")
	}
	token := strings.TrimPrefix(path, "Cart/")
	if token == "" {
		return "", fmt.Errorf("invalid ID format: missing cart token")
	}
	return token, nil
}
