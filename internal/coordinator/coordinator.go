// Package coordinator serializes remote reconciliation for one cart session.
//
// At most one job runs at a time. Requests arriving while a job runs replace
// the single pending slot (latest wins) and return immediately with a
// provisional result; the pending job starts when the running one finishes.
// Results are installed in the local cart only if no newer local revision
// exists.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cartsync/internal/adapter"
	"cartsync/internal/metrics"
	"cartsync/internal/model"
	"cartsync/internal/reconcile"
	"cartsync/internal/resolver"
)

// Target is the local cart the coordinator reconciles into.
type Target interface {
	Snapshot() model.LocalCart
	BeginLoad(ctx context.Context) int64
	ReplaceAll(ctx context.Context, items []model.CartItem, capturedRevision int64) bool
	AdoptRemoteCartID(ctx context.Context, cartID string, capturedRevision int64) bool
}

// Request is one reconciliation job.
type Request struct {
	Items    []model.CartItem // desired local items
	CartID   string           // remote cart id known when the request was made
	Session  model.Session
	Revision int64 // local revision the items were captured at

	// Detach reconciles CartID to empty without adopting it or touching
	// pointers. Used when the shopper clears the cart.
	Detach bool
	// Immediate flushes the identity pointer instead of scheduling it.
	Immediate bool
}

// Coordinator is the Sync Coordinator for one cart session.
type Coordinator struct {
	carts    adapter.CartService
	resolver *resolver.Resolver
	target   Target
	logger   *slog.Logger
	metrics  *metrics.Recorder

	mu      sync.Mutex
	running bool
	pending *queued
	idle    chan struct{} // closed while nothing runs
}

type queued struct {
	ctx context.Context
	req Request
}

// New creates a Coordinator.
func New(carts adapter.CartService, res *resolver.Resolver, target Target, logger *slog.Logger, m *metrics.Recorder) *Coordinator {
	idle := make(chan struct{})
	close(idle)
	return &Coordinator{
		carts:    carts,
		resolver: res,
		target:   target,
		logger:   logger,
		metrics:  m,
		idle:     idle,
	}
}

// RequestSync runs req now, or parks it in the pending slot if a job is in
// flight. A parked request returns OutcomeQueued carrying the known cart id;
// its job later runs detached from ctx's cancellation.
func (c *Coordinator) RequestSync(ctx context.Context, req Request) model.Outcome {
	c.mu.Lock()
	if c.running {
		if c.pending != nil {
			c.logger.Debug("replacing pending sync",
				slog.Int64("dropped_revision", c.pending.req.Revision),
				slog.Int64("revision", req.Revision),
			)
		}
		c.pending = &queued{ctx: context.WithoutCancel(ctx), req: req}
		c.mu.Unlock()
		c.metrics.SyncCoalesced()
		return model.Outcome{Kind: model.OutcomeQueued, CartID: req.CartID, Revision: req.Revision}
	}
	c.claimLocked()
	c.mu.Unlock()

	out := c.run(ctx, req)
	c.release()
	return out
}

// Exclusive waits until no job runs, then runs fn holding the in-flight slot.
// Sync requests made meanwhile are parked and run afterwards.
func (c *Coordinator) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	for {
		c.mu.Lock()
		if !c.running {
			c.claimLocked()
			c.mu.Unlock()
			break
		}
		idle := c.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer c.release()
	return fn(ctx)
}

// WaitIdle blocks until no job is running or pending.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether a job is running.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) claimLocked() {
	c.running = true
	c.idle = make(chan struct{})
}

// release hands the slot to the pending job, or marks the coordinator idle.
func (c *Coordinator) release() {
	c.mu.Lock()
	next := c.pending
	c.pending = nil
	if next == nil {
		c.running = false
		close(c.idle)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	go func() {
		c.run(next.ctx, next.req)
		c.release()
	}()
}

func (c *Coordinator) run(ctx context.Context, req Request) model.Outcome {
	start := time.Now()
	var out model.Outcome
	if req.Detach {
		out = c.detach(ctx, req)
	} else {
		out = c.sync(ctx, req)
	}
	c.metrics.SyncCompleted(string(out.Kind), time.Since(start))

	attrs := []any{
		slog.String("outcome", string(out.Kind)),
		slog.String("cart_id", out.CartID),
		slog.Int64("revision", out.Revision),
		slog.Duration("duration", time.Since(start)),
	}
	if out.Err != nil {
		attrs = append(attrs, slog.String("error", out.Err.Error()))
		c.logger.Warn("cart sync failed", attrs...)
	} else {
		c.logger.Debug("cart sync finished", attrs...)
	}
	return out
}

func (c *Coordinator) sync(ctx context.Context, req Request) model.Outcome {
	known := req.CartID
	if known == "" {
		// A job parked before the previous one adopted a cart would otherwise
		// resolve (and maybe create) a second cart.
		known = c.target.Snapshot().RemoteCartID
	}
	resReq := resolver.Request{
		KnownCartID: known,
		Session:     req.Session,
		Lines:       desiredLines(req.Items),
		AllowCreate: hasItems(req.Items),
		Immediate:   req.Immediate,
	}

	res, cart, err := c.resolveAndFetch(ctx, resReq)
	if errors.Is(err, resolver.ErrNoCart) {
		return model.Outcome{Kind: model.OutcomeLocalOnly, Revision: req.Revision}
	}
	if err != nil {
		return transient(req, known, err)
	}

	diff := reconcile.DiffLineItems(req.Items, cart.Lines)
	if err := c.apply(ctx, cart.ID, diff); err != nil {
		return transient(req, cart.ID, err)
	}
	if res.Via == model.ViaKnown {
		c.resolver.Record(ctx, req.Session, cart.ID, req.Immediate)
	}

	final := cart
	if !diff.IsEmpty() {
		final, err = c.fetch(ctx, cart.ID)
		if err != nil {
			c.target.AdoptRemoteCartID(ctx, cart.ID, req.Revision)
			return transient(req, cart.ID, fmt.Errorf("re-read cart: %w", err))
		}
	}

	c.target.AdoptRemoteCartID(ctx, final.ID, req.Revision)
	items := model.MergeCanonical(req.Items, final.Lines)
	if !c.target.ReplaceAll(ctx, items, req.Revision) {
		c.metrics.StaleResult()
		return model.Outcome{Kind: model.OutcomeStale, CartID: final.ID, Revision: req.Revision, Via: res.Via}
	}

	kind := model.OutcomeApplied
	if res.Recovered {
		kind = model.OutcomeFallback
	}
	c.logger.Info("cart reconciled",
		slog.String("cart_id", final.ID),
		slog.String("via", string(res.Via)),
		slog.Int("added", len(diff.ToAdd)),
		slog.Int("updated", len(diff.ToUpdate)),
		slog.Int("removed", len(diff.ToRemove)),
	)
	return model.Outcome{Kind: kind, CartID: final.ID, Revision: req.Revision, Via: res.Via}
}

// resolveAndFetch resolves the cart and makes sure it exists. A known id the
// backend no longer has is dropped and resolution retried once without it.
func (c *Coordinator) resolveAndFetch(ctx context.Context, req resolver.Request) (resolver.Resolution, *model.RemoteCart, error) {
	res, err := c.resolver.Resolve(ctx, req)
	if err != nil {
		return res, nil, err
	}
	if res.Cart != nil {
		return res, res.Cart, nil
	}

	cart, err := c.fetch(ctx, res.CartID)
	if err == nil {
		c.resolver.EnsureIdentity(ctx, cart, req.Session.Identity)
		return res, cart, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return res, nil, err
	}

	c.logger.Info("known cart no longer exists, re-resolving", slog.String("cart_id", res.CartID))
	req.KnownCartID = ""
	res, err = c.resolver.Resolve(ctx, req)
	if err != nil {
		return res, nil, err
	}
	res.Recovered = true
	return res, res.Cart, nil
}

// detach empties the previously known remote cart without adopting it.
func (c *Coordinator) detach(ctx context.Context, req Request) model.Outcome {
	if req.CartID == "" {
		return model.Outcome{Kind: model.OutcomeLocalOnly, Revision: req.Revision}
	}
	cart, err := c.fetch(ctx, req.CartID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Outcome{Kind: model.OutcomeLocalOnly, Revision: req.Revision}
	}
	if err != nil {
		return transient(req, req.CartID, err)
	}

	diff := reconcile.DiffLineItems(nil, cart.Lines)
	if err := c.apply(ctx, cart.ID, diff); err != nil {
		return transient(req, req.CartID, err)
	}
	c.logger.Info("remote cart emptied", slog.String("cart_id", cart.ID), slog.Int("removed", len(diff.ToRemove)))
	return model.Outcome{Kind: model.OutcomeApplied, Revision: req.Revision}
}

// Load replaces the local cart with the canonical remote cart. It runs
// exclusively so it never interleaves with a sync job, and its result is
// discarded if the shopper mutates the cart meanwhile.
func (c *Coordinator) Load(ctx context.Context, session model.Session) model.Outcome {
	var out model.Outcome
	err := c.Exclusive(ctx, func(ctx context.Context) error {
		revision := c.target.BeginLoad(ctx)
		snap := c.target.Snapshot()

		res, cart, err := c.resolveAndFetch(ctx, resolver.Request{
			KnownCartID: snap.RemoteCartID,
			Session:     session,
		})
		if errors.Is(err, resolver.ErrNoCart) {
			out = model.Outcome{Kind: model.OutcomeLocalOnly, Revision: revision}
			return nil
		}
		if err != nil {
			out = model.Outcome{Kind: model.OutcomeTransient, CartID: snap.RemoteCartID, Revision: revision, Err: err}
			return nil
		}

		c.target.AdoptRemoteCartID(ctx, cart.ID, revision)
		if res.Via == model.ViaKnown {
			c.resolver.Record(ctx, session, cart.ID, false)
		}
		items := model.MergeCanonical(snap.Items, cart.Lines)
		if !c.target.ReplaceAll(ctx, items, revision) {
			c.metrics.StaleResult()
			out = model.Outcome{Kind: model.OutcomeStale, CartID: cart.ID, Revision: revision, Via: res.Via}
			return nil
		}
		kind := model.OutcomeApplied
		if res.Recovered {
			kind = model.OutcomeFallback
		}
		out = model.Outcome{Kind: kind, CartID: cart.ID, Revision: revision, Via: res.Via}
		return nil
	})
	if err != nil {
		return model.Outcome{Kind: model.OutcomeTransient, Err: err}
	}
	return out
}

// apply executes a diff: Remove → Update → Add.
func (c *Coordinator) apply(ctx context.Context, cartID string, diff *reconcile.LineItemDiff) error {
	if len(diff.ToRemove) > 0 {
		_, err := c.carts.RemoveLines(ctx, cartID, diff.RemoveIDs())
		c.metrics.RemoteCall("remove", err)
		if err != nil {
			return fmt.Errorf("remove lines: %w", err)
		}
	}
	if len(diff.ToUpdate) > 0 {
		_, err := c.carts.UpdateLines(ctx, cartID, diff.Updates())
		c.metrics.RemoteCall("update", err)
		if err != nil {
			return fmt.Errorf("update lines: %w", err)
		}
	}
	if len(diff.ToAdd) > 0 {
		_, err := c.carts.AddLines(ctx, cartID, diff.AddInputs())
		c.metrics.RemoteCall("add", err)
		if err != nil {
			return fmt.Errorf("add lines: %w", err)
		}
	}
	return nil
}

func (c *Coordinator) fetch(ctx context.Context, cartID string) (*model.RemoteCart, error) {
	cart, err := c.carts.GetCart(ctx, cartID)
	c.metrics.RemoteCall("get", err)
	return cart, err
}

func transient(req Request, cartID string, err error) model.Outcome {
	return model.Outcome{Kind: model.OutcomeTransient, CartID: cartID, Revision: req.Revision, Err: err}
}

func desiredLines(items []model.CartItem) []model.LineInput {
	lines := make([]model.LineInput, 0, len(items))
	for _, item := range items {
		if item.Quantity > 0 {
			lines = append(lines, model.LineInput{VariantID: item.VariantID, Quantity: item.Quantity})
		}
	}
	return lines
}

func hasItems(items []model.CartItem) bool {
	for _, item := range items {
		if item.Quantity > 0 {
			return true
		}
	}
	return false
}
