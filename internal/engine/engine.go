// Package engine is the cart surface the storefront talks to. It applies
// shopper intent to the local cart immediately and hands reconciliation to the
// session's sync coordinator.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"cartsync/internal/adapter"
	"cartsync/internal/clock"
	"cartsync/internal/coordinator"
	"cartsync/internal/localcache"
	"cartsync/internal/localcart"
	"cartsync/internal/metrics"
	"cartsync/internal/model"
	"cartsync/internal/pointer"
	"cartsync/internal/resolver"
	"cartsync/internal/stock"
)

// checkoutAttempts bounds how often Checkout re-syncs while other mutations
// keep the coordinator busy.
const checkoutAttempts = 3

// Deps are the collaborators of one engine.
type Deps struct {
	Carts    adapter.CartService
	Pointers adapter.PointerStore
	Cache    localcache.Cache
	Clock    clock.Clock // defaults to the wall clock
	Logger   *slog.Logger
	Metrics  *metrics.Recorder

	PointerDelay   time.Duration // debounce window, default pointer.DefaultDelay
	CreateBurst    int           // cart creation cap, default resolver.DefaultCreateBurst
	CreateInterval time.Duration // refill interval, default resolver.DefaultCreateInterval
}

// Engine is one cart session: local store, pointer manager, resolver and
// coordinator wired together.
type Engine struct {
	store     *localcart.Store
	persister *pointer.Manager
	resolver  *resolver.Resolver
	coord     *coordinator.Coordinator
	carts     adapter.CartService
	logger    *slog.Logger
}

// New builds an engine and restores the session's last local snapshot.
func New(ctx context.Context, deps Deps) (*Engine, error) {
	if deps.Carts == nil || deps.Pointers == nil || deps.Cache == nil {
		return nil, fmt.Errorf("engine: carts, pointers and cache are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	burst, interval := deps.CreateBurst, deps.CreateInterval
	if burst <= 0 {
		burst = resolver.DefaultCreateBurst
	}
	if interval <= 0 {
		interval = resolver.DefaultCreateInterval
	}

	store := localcart.New(deps.Cache, deps.Logger)
	if err := store.Restore(ctx); err != nil {
		deps.Logger.Warn("local cart snapshot unreadable, starting empty", slog.String("error", err.Error()))
	}

	persister := pointer.NewManager(deps.Pointers, deps.Clock, deps.Logger,
		pointer.WithDelay(deps.PointerDelay),
		pointer.WithMetrics(deps.Metrics),
	)
	res := resolver.New(deps.Carts, deps.Pointers, deps.Cache, persister, deps.Logger,
		resolver.WithCreationLimit(burst, interval),
		resolver.WithMetrics(deps.Metrics),
	)

	return &Engine{
		store:     store,
		persister: persister,
		resolver:  res,
		coord:     coordinator.New(deps.Carts, res, store, deps.Logger, deps.Metrics),
		carts:     deps.Carts,
		logger:    deps.Logger,
	}, nil
}

// AddItem adds item (or raises its quantity) and syncs.
func (e *Engine) AddItem(ctx context.Context, session model.Session, item model.CartItem) model.Outcome {
	if item.Quantity > 0 && !stock.CanIncrease(item, item.Quantity) {
		return model.Rejected(model.ErrStockExceeded, e.store.Revision())
	}
	cart, err := e.store.ApplyAdd(ctx, item, stock.CanIncrease)
	if err != nil {
		return model.Rejected(err, cart.Revision)
	}
	return e.sync(ctx, session, cart, false)
}

// RemoveItem removes a line and syncs.
func (e *Engine) RemoveItem(ctx context.Context, session model.Session, variantID string) model.Outcome {
	cart, err := e.store.ApplyRemove(ctx, variantID)
	if err != nil {
		return model.Rejected(err, cart.Revision)
	}
	return e.sync(ctx, session, cart, false)
}

// SetQuantity sets a line's quantity (≤ 0 removes it) and syncs.
func (e *Engine) SetQuantity(ctx context.Context, session model.Session, variantID string, qty int) model.Outcome {
	snap := e.store.Snapshot()
	for _, item := range snap.Items {
		if model.SameID(item.VariantID, variantID) && qty > item.Quantity && !stock.CanIncrease(item, qty) {
			return model.Rejected(model.ErrStockExceeded, snap.Revision)
		}
	}
	before := snap.Revision
	cart, err := e.store.ApplySetQuantity(ctx, variantID, qty, stock.CanIncrease)
	if err != nil {
		return model.Rejected(err, cart.Revision)
	}
	if cart.Revision == before {
		return model.Outcome{Kind: model.OutcomeApplied, CartID: cart.RemoteCartID, Revision: cart.Revision}
	}
	return e.sync(ctx, session, cart, false)
}

// ClearCart empties the cart. The previously known remote cart is emptied
// but not re-adopted, and no pointer is written. The identity pointer is left
// in place.
func (e *Engine) ClearCart(ctx context.Context, session model.Session) model.Outcome {
	e.persister.CancelPending()
	before, after := e.store.ApplyClear(ctx)
	return e.coord.RequestSync(ctx, coordinator.Request{
		CartID:   before.RemoteCartID,
		Session:  session,
		Revision: after.Revision,
		Detach:   true,
	})
}

// LoadFromRemote replaces the local cart with the canonical remote cart,
// discovering it through pointers when no id is known. Waits for any
// in-flight sync first.
func (e *Engine) LoadFromRemote(ctx context.Context, session model.Session) model.Outcome {
	return e.coord.Load(ctx, session)
}

// Checkout makes sure the remote cart reflects the local cart, writes the
// identity pointer immediately and returns the backend checkout URL.
func (e *Engine) Checkout(ctx context.Context, session model.Session) (string, model.Outcome) {
	snap := e.store.Snapshot()
	if len(snap.Items) == 0 {
		return "", model.Rejected(model.ErrEmptyCart, snap.Revision)
	}

	// A queued result says nothing about how the parked job ended, so wait
	// and reconcile again until a run of our own reports the outcome.
	out := e.sync(ctx, session, snap, true)
	for attempt := 1; out.Kind == model.OutcomeQueued; attempt++ {
		if attempt > checkoutAttempts {
			return "", model.Outcome{Kind: model.OutcomeTransient, CartID: out.CartID, Revision: out.Revision, Err: model.ErrCartBusy}
		}
		if err := e.coord.WaitIdle(ctx); err != nil {
			return "", model.Outcome{Kind: model.OutcomeTransient, Err: err}
		}
		out = e.sync(ctx, session, e.store.Snapshot(), true)
	}
	if out.Kind == model.OutcomeTransient || out.CartID == "" {
		return "", out
	}

	cart, err := e.carts.GetCart(ctx, out.CartID)
	if err != nil {
		return "", model.Outcome{Kind: model.OutcomeTransient, CartID: out.CartID, Revision: out.Revision, Err: err}
	}
	return cart.CheckoutURL, out
}

// Snapshot returns the current local cart.
func (e *Engine) Snapshot() model.LocalCart {
	return e.store.Snapshot()
}

// Total returns the cart total.
func (e *Engine) Total() decimal.Decimal {
	return e.store.Snapshot().Total()
}

// ItemCount returns the number of units in the cart.
func (e *Engine) ItemCount() int {
	return e.store.Snapshot().ItemCount()
}

// Subscribe streams cart snapshots; call the returned func to stop.
func (e *Engine) Subscribe() (<-chan model.LocalCart, func()) {
	return e.store.Subscribe()
}

// Watched reports whether anyone is subscribed to the cart.
func (e *Engine) Watched() bool {
	return e.store.Subscribers() > 0
}

// WaitIdle blocks until no sync is running or pending.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.coord.WaitIdle(ctx)
}

// Busy reports whether a sync is in flight.
func (e *Engine) Busy() bool {
	return e.coord.Busy()
}

func (e *Engine) sync(ctx context.Context, session model.Session, cart model.LocalCart, immediate bool) model.Outcome {
	return e.coord.RequestSync(ctx, coordinator.Request{
		Items:     cart.Items,
		CartID:    cart.RemoteCartID,
		Session:   session,
		Revision:  cart.Revision,
		Immediate: immediate,
	})
}
