// Package resolver decides which remote cart a cart session syncs against.
//
// Order of preference:
//  1. the id already known in memory
//  2. the identity-keyed pointer (authenticated sessions with a usable identity)
//  3. the local fallback pointer (works for anonymous sessions)
//  4. a newly created cart, capped per session by a token bucket
//
// Every adopted or created id is recorded as the local fallback pointer and
// handed to the pointer manager.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"cartsync/internal/adapter"
	"cartsync/internal/localcache"
	"cartsync/internal/metrics"
	"cartsync/internal/model"
	"cartsync/internal/pointer"
)

// ErrNoCart is returned when nothing was found and creation was not allowed.
var ErrNoCart = errors.New("no remote cart")

// Defaults for the cart creation cap.
const (
	DefaultCreateBurst    = 3
	DefaultCreateInterval = time.Minute
)

// Resolver is the Remote Cart Resolver for one cart session.
type Resolver struct {
	carts     adapter.CartService
	pointers  adapter.PointerStore
	cache     localcache.Cache
	persister *pointer.Manager
	creations *rate.Limiter
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCreationLimit caps cart creation to burst carts, refilling one per interval.
func WithCreationLimit(burst int, interval time.Duration) Option {
	return func(r *Resolver) {
		if burst > 0 && interval > 0 {
			r.creations = rate.NewLimiter(rate.Every(interval), burst)
		}
	}
}

// WithMetrics records created carts.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a Resolver.
func New(carts adapter.CartService, pointers adapter.PointerStore, cache localcache.Cache, persister *pointer.Manager, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		carts:     carts,
		pointers:  pointers,
		cache:     cache,
		persister: persister,
		creations: rate.NewLimiter(rate.Every(DefaultCreateInterval), DefaultCreateBurst),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request describes what the caller knows.
type Request struct {
	KnownCartID string
	Session     model.Session
	Lines       []model.LineInput // initial lines if a cart is created
	AllowCreate bool
	Immediate   bool // flush the identity pointer instead of scheduling it
}

// Resolution is the cart to sync against.
type Resolution struct {
	CartID string
	// Cart is the fetched (or created) cart; nil when Via is ViaKnown.
	Cart *model.RemoteCart
	Via  model.ResolutionSource
	// Recovered is set when a pointer was unusable and a later step was taken.
	Recovered bool
}

// Resolve returns the remote cart for req.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	if req.KnownCartID != "" {
		return Resolution{CartID: req.KnownCartID, Via: model.ViaKnown}, nil
	}

	recovered := false
	identity := req.Session.Identity

	if key := pointerKey(req.Session); key != "" {
		cartID, found, err := r.pointers.GetPointer(ctx, key)
		switch {
		case err != nil:
			r.logger.Warn("pointer store lookup failed", slog.String("error", err.Error()))
			recovered = true
		case found:
			res, ok, err := r.adopt(ctx, req, cartID, model.ViaPointer)
			if err != nil {
				return Resolution{}, err
			}
			if ok {
				return res, nil
			}
			recovered = true
		}
	}

	cartID, err := r.cache.LoadPointer(ctx)
	if err != nil {
		r.logger.Warn("local cart pointer unreadable", slog.String("error", err.Error()))
	}
	if cartID != "" {
		res, ok, err := r.adopt(ctx, req, cartID, model.ViaLocal)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			res.Recovered = recovered
			return res, nil
		}
		recovered = true
	}

	if !req.AllowCreate {
		return Resolution{Recovered: recovered}, ErrNoCart
	}
	if !r.creations.Allow() {
		r.logger.Warn("cart creation limit reached")
		return Resolution{Recovered: recovered}, model.ErrCreationLimited
	}

	cart, err := r.carts.CreateCart(ctx, req.Lines, identity.Canonical())
	if err != nil {
		return Resolution{}, fmt.Errorf("create cart: %w", err)
	}
	r.metrics.CartCreated()
	r.logger.Info("remote cart created",
		slog.String("cart_id", cart.ID),
		slog.Int("lines", len(cart.Lines)),
	)
	r.record(ctx, req, cart.ID)
	return Resolution{CartID: cart.ID, Cart: cart, Via: model.ViaCreated, Recovered: recovered}, nil
}

// adopt fetches cartID and adopts it if it still exists. ok is false when the
// cart is gone; err is set only for failures that should abort resolution.
func (r *Resolver) adopt(ctx context.Context, req Request, cartID string, via model.ResolutionSource) (Resolution, bool, error) {
	cart, err := r.carts.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.logger.Info("pointed cart no longer exists",
				slog.String("cart_id", cartID),
				slog.String("via", string(via)),
			)
			return Resolution{}, false, nil
		}
		return Resolution{}, false, fmt.Errorf("fetch cart: %w", err)
	}

	if r.EnsureIdentity(ctx, cart, req.Session.Identity) {
		cart.BuyerIdentity = req.Session.Identity.Canonical()
	}
	r.record(ctx, req, cart.ID)
	return Resolution{CartID: cart.ID, Cart: cart, Via: via}, true, nil
}

// EnsureIdentity attaches identity to cart when it is valid and the cart
// reflects something else. Failure is logged and never fatal. Reports whether
// the remote identity was updated.
func (r *Resolver) EnsureIdentity(ctx context.Context, cart *model.RemoteCart, identity model.BuyerIdentity) bool {
	if cart == nil || !identity.IsValid() || identity.Matches(cart.BuyerIdentity) {
		return false
	}
	if _, err := r.carts.UpdateBuyerIdentity(ctx, cart.ID, identity.Canonical()); err != nil {
		r.logger.Warn("failed to update cart buyer identity",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	r.logger.Debug("cart buyer identity updated", slog.String("cart_id", cart.ID))
	return true
}

// Record persists cartID as the local fallback pointer and hands it to the
// pointer manager.
func (r *Resolver) Record(ctx context.Context, session model.Session, cartID string, immediate bool) {
	r.record(ctx, Request{Session: session, Immediate: immediate}, cartID)
}

// pointerKey is the identity pointer key for s, or "" when the session
// carries no usable identity. Lookups and writes both go through it.
func pointerKey(s model.Session) string {
	if !s.Identity.IsValid() {
		return ""
	}
	return s.PointerKey()
}

func (r *Resolver) record(ctx context.Context, req Request, cartID string) {
	if err := r.cache.SavePointer(ctx, cartID); err != nil {
		r.logger.Warn("failed to save local cart pointer", slog.String("error", err.Error()))
	}
	key := pointerKey(req.Session)
	if key == "" {
		return
	}
	if req.Immediate {
		r.persister.Flush(ctx, key, cartID)
		return
	}
	r.persister.Schedule(key, cartID)
}
