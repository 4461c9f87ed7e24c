package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"cartsync/internal/engine"
	"cartsync/internal/model"
	"cartsync/internal/session"
)

// cartSession resolves the cart session and the shopper behind r.
func (h *Handler) cartSession(w http.ResponseWriter, r *http.Request) (*engine.Engine, model.Session, error) {
	id := session.ID(w, r)
	return h.engineFor(r.Context(), id, r)
}

func (h *Handler) engineFor(ctx context.Context, sessionID string, r *http.Request) (*engine.Engine, model.Session, error) {
	shopper, err := h.identity.Resolve(r)
	if err != nil {
		return nil, model.Session{}, err
	}
	eng, err := h.engines.Get(ctx, sessionID)
	if err != nil {
		return nil, model.Session{}, model.NewInternalError(err)
	}
	return eng, shopper, nil
}

// writeOutcome answers a cart mutation. Rejections are 422s; every other
// outcome is a 200 carrying the cart as it now stands locally.
func (h *Handler) writeOutcome(w http.ResponseWriter, eng *engine.Engine, out model.Outcome) {
	if out.Kind == model.OutcomeRejected {
		h.writeError(w, out.Err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResult{
		Outcome: toOutcomeView(out),
		Cart:    toCartView(eng.Snapshot()),
	})
}

// handleGetCart returns the local cart.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	eng, _, err := h.cartSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResult{Cart: toCartView(eng.Snapshot())})
}

// handleAddItem adds an item or raises its quantity.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in itemInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	item, err := in.toItem()
	if err != nil {
		h.writeError(w, err)
		return
	}

	eng, shopper, err := h.cartSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding item",
		slog.String("variant_id", item.VariantID),
		slog.Int("quantity", item.Quantity),
	)

	h.writeOutcome(w, eng, eng.AddItem(ctx, shopper, item))
}

// handleSetQuantity sets a line's quantity.
// PATCH /cart/items
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in quantityInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	if strings.TrimSpace(in.VariantID) == "" {
		h.writeError(w, model.NewValidationError("variant_id", "required"))
		return
	}

	eng, shopper, err := h.cartSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "setting quantity",
		slog.String("variant_id", in.VariantID),
		slog.Int("quantity", in.Quantity),
	)

	h.writeOutcome(w, eng, eng.SetQuantity(ctx, shopper, in.VariantID, in.Quantity))
}

// handleRemoveItem removes a line.
// DELETE /cart/items?variant_id=
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	variantID := strings.TrimSpace(r.URL.Query().Get("variant_id"))
	if variantID == "" {
		h.writeError(w, model.NewValidationError("variant_id", "required"))
		return
	}

	eng, shopper, err := h.cartSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "removing item", slog.String("variant_id", variantID))

	h.writeOutcome(w, eng, eng.RemoveItem(ctx, shopper, variantID))
}

// handleClearCart empties the cart.
// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eng, shopper, err := h.cartSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "clearing cart")

	h.writeOutcome(w, eng, eng.ClearCart(ctx, shopper))
}

// handleLoadCart replaces the local cart with the remote one.
// POST /cart/load
func (h *Handler) handleLoadCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eng, shopper, err := h.cartSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "loading cart from remote",
		slog.Bool("authenticated", shopper.Authenticated),
	)

	h.writeOutcome(w, eng, eng.LoadFromRemote(ctx, shopper))
}

// handleCheckout syncs the cart and returns the backend checkout URL.
// POST /cart/checkout
func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eng, shopper, err := h.cartSession(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	url, out := eng.Checkout(ctx, shopper)
	if out.Kind == model.OutcomeRejected {
		h.writeError(w, out.Err)
		return
	}
	if url == "" {
		// The cart is safe locally but the backend could not be reached.
		h.logger.WarnContext(ctx, "checkout unavailable",
			slog.String("outcome", string(out.Kind)),
			slog.Any("error", out.Err),
		)
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: errorBody{Code: "CHECKOUT_UNAVAILABLE", Message: "checkout is temporarily unavailable, please retry"},
		})
		return
	}

	h.logger.InfoContext(ctx, "checkout ready", slog.String("cart_id", out.CartID))
	h.writeJSON(w, http.StatusOK, cartResult{
		Outcome:     toOutcomeView(out),
		Cart:        toCartView(eng.Snapshot()),
		CheckoutURL: url,
	})
}
