package shopify

import "encoding/json"

// =============================================================================
// STOREFRONT API TYPES
// =============================================================================
//
// Only the fields the cart engine reads are declared. Connections are
// flattened through "nodes" (supported since 2023-01).
// =============================================================================

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// userError is CartUserError.
type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}

// === Cart ===

type cart struct {
	ID            string             `json:"id"`
	CheckoutURL   string             `json:"checkoutUrl"`
	BuyerIdentity cartBuyerIdentity  `json:"buyerIdentity"`
	Lines         cartLineConnection `json:"lines"`
}

type cartBuyerIdentity struct {
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

type cartLineConnection struct {
	Nodes []cartLine `json:"nodes"`
}

type cartLine struct {
	ID          string         `json:"id"`
	Quantity    int            `json:"quantity"`
	Merchandise productVariant `json:"merchandise"`
}

type productVariant struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	AvailableForSale  bool             `json:"availableForSale"`
	QuantityAvailable *int             `json:"quantityAvailable"`
	Price             moneyV2          `json:"price"`
	Image             *image           `json:"image"`
	SelectedOptions   []selectedOption `json:"selectedOptions"`
	Product           struct {
		Handle string `json:"handle"`
		Title  string `json:"title"`
	} `json:"product"`
}

type moneyV2 struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type image struct {
	URL string `json:"url"`
}

type selectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// === Inputs ===

type cartLineInput struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

type cartLineUpdateInput struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type cartBuyerIdentityInput struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type cartInput struct {
	Lines         []cartLineInput         `json:"lines,omitempty"`
	BuyerIdentity *cartBuyerIdentityInput `json:"buyerIdentity,omitempty"`
}

// === Payloads ===

type cartQueryData struct {
	Cart *cart `json:"cart"`
}

// mutationPayload is the shape shared by every cart mutation payload.
type mutationPayload struct {
	Cart       *cart       `json:"cart"`
	UserErrors []userError `json:"userErrors"`
}

type cartCreateData struct {
	Payload mutationPayload `json:"cartCreate"`
}

type cartLinesAddData struct {
	Payload mutationPayload `json:"cartLinesAdd"`
}

type cartLinesUpdateData struct {
	Payload mutationPayload `json:"cartLinesUpdate"`
}

type cartLinesRemoveData struct {
	Payload mutationPayload `json:"cartLinesRemove"`
}

type cartBuyerIdentityUpdateData struct {
	Payload mutationPayload `json:"cartBuyerIdentityUpdate"`
}
