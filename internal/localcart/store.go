// Package localcart holds the optimistic local cart of one cart session.
//
// Every mutation bumps a monotonic revision and is persisted to the local
// durable cache before it returns, so the cart survives a restart even when
// the remote cart service is unreachable. Results computed against an older
// revision are rejected by ReplaceAll.
package localcart

import (
	"context"
	"log/slog"
	"sync"

	"cartsync/internal/localcache"
	"cartsync/internal/model"
	"cartsync/internal/stock"
)

// Store is the Local Cart Store. Safe for concurrent use.
type Store struct {
	cache  localcache.Cache
	logger *slog.Logger

	mu        sync.Mutex
	cart      model.LocalCart
	clearedAt int64 // revision of the most recent clear
	subs      map[int]chan model.LocalCart
	nextSub   int
}

// New creates an empty store backed by cache.
func New(cache localcache.Cache, logger *slog.Logger) *Store {
	return &Store{
		cache:  cache,
		logger: logger,
		cart:   model.LocalCart{Items: []model.CartItem{}},
		subs:   make(map[int]chan model.LocalCart),
	}
}

// Restore loads the last persisted snapshot. A missing or unreadable cache
// leaves the store empty.
func (s *Store) Restore(ctx context.Context) error {
	snap, err := s.cache.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Revision > s.cart.Revision {
		s.cart = snap.Cart()
	}
	return nil
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() model.LocalCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Revision returns the current revision.
func (s *Store) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Revision
}

// ApplyAdd adds item or, if an item with the same normalized id exists,
// raises its quantity by item.Quantity. Incoming metadata replaces stored
// metadata. guard is re-checked here under the lock.
func (s *Store) ApplyAdd(ctx context.Context, item model.CartItem, guard stock.Guard) (model.LocalCart, error) {
	if item.Key() == "" {
		return s.Snapshot(), model.ErrInvalidItem
	}
	if item.Quantity <= 0 {
		return s.Snapshot(), model.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(item.VariantID)
	if idx < 0 {
		if !guard(item, item.Quantity) {
			return s.cart.Clone(), model.ErrStockExceeded
		}
		s.cart.Items = append(s.cart.Items, item)
		return s.commitLocked(ctx, "add"), nil
	}

	existing := s.cart.Items[idx]
	merged := item
	merged.VariantID = existing.VariantID
	if merged.QuantityAvailable == nil {
		merged.QuantityAvailable = existing.QuantityAvailable
	}
	merged.Quantity = existing.Quantity + item.Quantity
	if !guard(merged, merged.Quantity) {
		return s.cart.Clone(), model.ErrStockExceeded
	}
	s.cart.Items[idx] = merged
	return s.commitLocked(ctx, "add"), nil
}

// ApplyRemove deletes the item with the given id.
func (s *Store) ApplyRemove(ctx context.Context, variantID string) (model.LocalCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(variantID)
	if idx < 0 {
		return s.cart.Clone(), model.ErrItemNotInCart
	}
	s.cart.Items = append(s.cart.Items[:idx], s.cart.Items[idx+1:]...)
	return s.commitLocked(ctx, "remove"), nil
}

// ApplySetQuantity sets an item's quantity. Quantities ≤ 0 remove the item.
// Increases are checked against guard; decreases never are.
func (s *Store) ApplySetQuantity(ctx context.Context, variantID string, qty int, guard stock.Guard) (model.LocalCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(variantID)
	if idx < 0 {
		return s.cart.Clone(), model.ErrItemNotInCart
	}
	if qty <= 0 {
		s.cart.Items = append(s.cart.Items[:idx], s.cart.Items[idx+1:]...)
		return s.commitLocked(ctx, "remove"), nil
	}

	item := s.cart.Items[idx]
	if qty > item.Quantity && !guard(item, qty) {
		return s.cart.Clone(), model.ErrStockExceeded
	}
	if qty == item.Quantity {
		return s.cart.Clone(), nil
	}
	s.cart.Items[idx].Quantity = qty
	return s.commitLocked(ctx, "set_quantity"), nil
}

// ApplyClear empties the cart and forgets the remote cart id and the local
// fallback pointer. Returns the cart as it was before clearing.
func (s *Store) ApplyClear(ctx context.Context) (before, after model.LocalCart) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before = s.cart.Clone()
	s.cart.Items = []model.CartItem{}
	s.cart.RemoteCartID = ""
	after = s.commitLocked(ctx, "clear")
	s.clearedAt = after.Revision

	if err := s.cache.ClearPointer(ctx); err != nil {
		s.logger.Warn("failed to clear local cart pointer", slog.String("error", err.Error()))
	}
	return before, after
}

// BeginLoad bumps the revision for a load-from-remote attempt and returns the
// revision the load must present to ReplaceAll.
func (s *Store) BeginLoad(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, "load").Revision
}

// ReplaceAll installs reconciled items if no mutation happened after
// capturedRevision. Returns false, changing nothing, when the result is stale.
func (s *Store) ReplaceAll(ctx context.Context, items []model.CartItem, capturedRevision int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if capturedRevision < s.cart.Revision {
		s.logger.Debug("discarding stale cart result",
			slog.Int64("captured_revision", capturedRevision),
			slog.Int64("current_revision", s.cart.Revision),
		)
		return false
	}
	s.cart.Items = model.CloneItems(items)
	s.commitLocked(ctx, "replace")
	return true
}

// AdoptRemoteCartID records the remote cart id learned by a sync that
// started at capturedRevision. It applies even when the sync's items are
// stale, but never resurrects an id dropped by a later clear.
func (s *Store) AdoptRemoteCartID(ctx context.Context, cartID string, capturedRevision int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if capturedRevision < s.clearedAt || s.cart.RemoteCartID == cartID {
		return false
	}
	s.cart.RemoteCartID = cartID
	s.persistLocked(ctx)
	s.notifyLocked()
	return true
}

// Subscribe returns a channel receiving the cart after every change, and a
// function to stop receiving. Slow receivers only see the latest snapshot.
func (s *Store) Subscribe() (<-chan model.LocalCart, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan model.LocalCart, 1)
	ch <- s.cart.Clone()
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) indexLocked(variantID string) int {
	key := model.NormalizeID(variantID)
	if key == "" {
		return -1
	}
	for i, item := range s.cart.Items {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

// commitLocked bumps the revision, persists and notifies.
func (s *Store) commitLocked(ctx context.Context, op string) model.LocalCart {
	s.cart.Revision++
	s.persistLocked(ctx)
	s.notifyLocked()
	s.logger.Debug("local cart mutated",
		slog.String("op", op),
		slog.Int64("revision", s.cart.Revision),
		slog.Int("lines", len(s.cart.Items)),
	)
	return s.cart.Clone()
}

func (s *Store) persistLocked(ctx context.Context) {
	if err := s.cache.SaveCart(ctx, s.cart); err != nil {
		s.logger.Warn("failed to persist local cart",
			slog.Int64("revision", s.cart.Revision),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.cart.Clone()
	}
}
