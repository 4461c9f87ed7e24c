// Package handler provides the HTTP surface of the cart sync service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cartsync/internal/engine"
	"cartsync/internal/metrics"
	"cartsync/internal/model"
	"cartsync/internal/session"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engines   *engine.Registry
	identity  session.Provider
	metrics   *metrics.Recorder
	logger    *slog.Logger
	heartbeat time.Duration
}

// New creates a Handler serving the carts in engines. identity establishes
// the shopper's session per request; metrics may be nil.
func New(engines *engine.Registry, identity session.Provider, m *metrics.Recorder, logger *slog.Logger) *Handler {
	if identity == nil {
		identity = session.HeaderProvider{}
	}
	return &Handler{
		engines:   engines,
		identity:  identity,
		metrics:   m,
		logger:    logger,
		heartbeat: 15 * time.Second,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// REST transport - cart operations
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PATCH /cart/items", h.handleSetQuantity)
	mux.HandleFunc("DELETE /cart/items", h.handleRemoveItem)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)
	mux.HandleFunc("POST /cart/load", h.handleLoadCart)
	mux.HandleFunc("POST /cart/checkout", h.handleCheckout)
	mux.HandleFunc("GET /cart/events", h.handleEvents)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: h.engines.Len()})
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.apiError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// apiError finds the APIError in err's chain. Cart rule violations become
// 422s; anything else unrecognized is an internal error.
func (h *Handler) apiError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if code := ruleCode(err); code != "" {
		return model.NewCartRuleError(code, err)
	}
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return model.NewInternalError(err)
}

// ruleCode names the cart rule err violates, or "" if it is not a rule error.
func ruleCode(err error) string {
	switch {
	case errors.Is(err, model.ErrStockExceeded):
		return "STOCK_EXCEEDED"
	case errors.Is(err, model.ErrInvalidItem):
		return "INVALID_ITEM"
	case errors.Is(err, model.ErrInvalidQuantity):
		return "INVALID_QUANTITY"
	case errors.Is(err, model.ErrItemNotInCart):
		return "ITEM_NOT_IN_CART"
	case errors.Is(err, model.ErrEmptyCart):
		return "EMPTY_CART"
	default:
		return ""
	}
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
