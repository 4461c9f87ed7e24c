// MCP transport handler using the official MCP Go SDK.
// Exposes the cart operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cartsync/internal/engine"
	"cartsync/internal/model"
	"cartsync/internal/session"
)

// === MCP Meta Types ===
// meta carries what REST reads from headers:
// - Cart-Session header → meta["cart-session"]
// - Buyer-Identity header → meta["buyer-identity"]
// - Authorization header → meta["authorization"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	CartSession   string `json:"cart-session" jsonschema:"cart session id, 8 to 64 characters of [A-Za-z0-9_-]"`
	BuyerIdentity string `json:"buyer-identity,omitempty" jsonschema:"Buyer-Identity structured header value"`
	Authorization string `json:"authorization,omitempty" jsonschema:"Authorization header value (Bearer token)"`
}

// === MCP Tool Input Types ===

// CartInput is the input of tools that only need the session.
type CartInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"request metadata"`
}

// AddItemInput is the input schema for add_item.
type AddItemInput struct {
	Meta MCPMeta   `json:"meta" jsonschema:"request metadata"`
	Item itemInput `json:"item" jsonschema:"item to add"`
}

// SetQuantityInput is the input schema for set_quantity.
type SetQuantityInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"request metadata"`
	VariantID string  `json:"variant_id" jsonschema:"product variant ID"`
	Quantity  int     `json:"quantity" jsonschema:"new quantity; 0 or less removes the line"`
}

// RemoveItemInput is the input schema for remove_item.
type RemoveItemInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"request metadata"`
	VariantID string  `json:"variant_id" jsonschema:"product variant ID"`
}

// NewMCPServer creates an MCP server with the cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cartsync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Shopping cart operations. Every call names its cart session in meta.cart-session. " +
				"Mutations apply locally at once and sync with the store in the background.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the current cart.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_item",
		Description: "Add an item to the cart, or raise its quantity if already present.",
	}, h.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_quantity",
		Description: "Set the quantity of a cart line. A quantity of 0 removes the line.",
	}, h.mcpSetQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_item",
		Description: "Remove a line from the cart.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Remove every line from the cart.",
	}, h.mcpClearCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_cart",
		Description: "Replace the local cart with the shopper's cart from the store, e.g. after sign-in on a new device.",
	}, h.mcpLoadCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(ctx context.Context, req *mcp.CallToolRequest, input CartInput) (*mcp.CallToolResult, *cartResult, error) {
	eng, _, err := h.mcpSession(ctx, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return nil, &cartResult{Cart: toCartView(eng.Snapshot())}, nil
}

func (h *Handler) mcpAddItem(ctx context.Context, req *mcp.CallToolRequest, input AddItemInput) (*mcp.CallToolResult, *cartResult, error) {
	item, err := input.Item.toItem()
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	eng, shopper, err := h.mcpSession(ctx, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpOutcome(eng, eng.AddItem(ctx, shopper, item))
}

func (h *Handler) mcpSetQuantity(ctx context.Context, req *mcp.CallToolRequest, input SetQuantityInput) (*mcp.CallToolResult, *cartResult, error) {
	if strings.TrimSpace(input.VariantID) == "" {
		return nil, nil, fmt.Errorf("variant_id is required")
	}
	eng, shopper, err := h.mcpSession(ctx, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpOutcome(eng, eng.SetQuantity(ctx, shopper, input.VariantID, input.Quantity))
}

func (h *Handler) mcpRemoveItem(ctx context.Context, req *mcp.CallToolRequest, input RemoveItemInput) (*mcp.CallToolResult, *cartResult, error) {
	if strings.TrimSpace(input.VariantID) == "" {
		return nil, nil, fmt.Errorf("variant_id is required")
	}
	eng, shopper, err := h.mcpSession(ctx, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpOutcome(eng, eng.RemoveItem(ctx, shopper, input.VariantID))
}

func (h *Handler) mcpClearCart(ctx context.Context, req *mcp.CallToolRequest, input CartInput) (*mcp.CallToolResult, *cartResult, error) {
	eng, shopper, err := h.mcpSession(ctx, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpOutcome(eng, eng.ClearCart(ctx, shopper))
}

func (h *Handler) mcpLoadCart(ctx context.Context, req *mcp.CallToolRequest, input CartInput) (*mcp.CallToolResult, *cartResult, error) {
	eng, shopper, err := h.mcpSession(ctx, input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return h.mcpOutcome(eng, eng.LoadFromRemote(ctx, shopper))
}

// mcpSession resolves the engine and shopper from meta by presenting it to
// the session provider as the equivalent REST headers.
func (h *Handler) mcpSession(ctx context.Context, meta MCPMeta) (*engine.Engine, model.Session, error) {
	if !session.ValidID(meta.CartSession) {
		return nil, model.Session{}, errors.New("meta.cart-session is required (8 to 64 characters of [A-Za-z0-9_-])")
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, "/mcp", nil)
	if err != nil {
		return nil, model.Session{}, h.mcpError(err)
	}
	if meta.BuyerIdentity != "" {
		r.Header.Set(session.IdentityHeader, meta.BuyerIdentity)
	}
	if meta.Authorization != "" {
		r.Header.Set("Authorization", meta.Authorization)
	}

	eng, shopper, err := h.engineFor(ctx, meta.CartSession, r)
	if err != nil {
		return nil, model.Session{}, h.mcpError(err)
	}
	return eng, shopper, nil
}

// mcpOutcome turns a rejection into a tool error and anything else into the
// cart result.
func (h *Handler) mcpOutcome(eng *engine.Engine, out model.Outcome) (*mcp.CallToolResult, *cartResult, error) {
	if out.Kind == model.OutcomeRejected {
		return nil, nil, h.mcpError(out.Err)
	}
	return nil, &cartResult{
		Outcome: toOutcomeView(out),
		Cart:    toCartView(eng.Snapshot()),
	}, nil
}

// mcpError converts engine errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) || ruleCode(err) != "" {
		apiErr = h.apiError(err)
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", slog.String("error", err.Error()))
	return fmt.Errorf("internal error")
}
