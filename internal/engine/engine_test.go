package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cartsync/internal/adapter"
	"cartsync/internal/clock"
	"cartsync/internal/localcache"
	"cartsync/internal/model"
	"cartsync/internal/pointer"
	"cartsync/internal/pointerstore"
)

type env struct {
	carts    *adapter.MemoryCartService
	pointers *pointerstore.Memory
	clock    *clock.Manual
	logger   *slog.Logger
}

func newEnv() *env {
	return &env{
		carts:    adapter.NewMemoryCartService(nil),
		pointers: pointerstore.NewMemory(),
		clock:    clock.NewManual(time.Unix(0, 0)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (v *env) engine(t *testing.T, cache localcache.Cache) *Engine {
	t.Helper()
	e, err := New(context.Background(), Deps{
		Carts:    v.carts,
		Pointers: v.pointers,
		Cache:    cache,
		Clock:    v.clock,
		Logger:   v.logger,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return e
}

func qty(n int) *int { return &n }

func book(id string, n int) model.CartItem {
	return model.CartItem{
		VariantID:   id,
		Title:       "Book " + id,
		UnitPrice:   decimal.RequireFromString("12.50"),
		Currency:    "USD",
		Quantity:    n,
		IsAvailable: true,
	}
}

var shopper = model.Session{
	Authenticated: true,
	CustomerKey:   "cus_42",
	Identity:      model.BuyerIdentity{Email: "new@shop.io"},
}

func TestEngine_FreshAdd(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	e := v.engine(t, localcache.NewMemory())

	out := e.AddItem(ctx, model.Session{}, book("gid://shopify/ProductVariant/1", 1))

	if out.Kind != model.OutcomeApplied {
		t.Fatalf("outcome = %+v, want applied", out)
	}
	if v.carts.CountCalls(adapter.OpCreate) != 1 {
		t.Errorf("creates = %d, want 1", v.carts.CountCalls(adapter.OpCreate))
	}
	if got := e.Snapshot().RemoteCartID; got == "" || got != out.CartID {
		t.Errorf("RemoteCartID = %q, want %q", got, out.CartID)
	}
	if got := e.Total(); !got.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("Total() = %s, want 12.50", got)
	}
}

func TestEngine_StockBlock(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	e := v.engine(t, localcache.NewMemory())

	item := book("1", 1)
	item.QuantityAvailable = qty(0)
	out := e.AddItem(ctx, model.Session{}, item)

	if out.Kind != model.OutcomeRejected || !errors.Is(out.Err, model.ErrStockExceeded) {
		t.Fatalf("outcome = %+v, want rejected stock", out)
	}
	if len(v.carts.Calls()) != 0 {
		t.Errorf("calls = %v, want no remote traffic", v.carts.Calls())
	}
	if e.ItemCount() != 0 {
		t.Errorf("ItemCount() = %d, want 0", e.ItemCount())
	}

	limited := book("2", 2)
	limited.QuantityAvailable = qty(3)
	e.AddItem(ctx, model.Session{}, limited)
	out = e.SetQuantity(ctx, model.Session{}, "2", 4)
	if out.Kind != model.OutcomeRejected {
		t.Errorf("SetQuantity above ceiling: outcome = %+v, want rejected", out)
	}
}

func TestEngine_QuantityUpdateAndRemove(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	e := v.engine(t, localcache.NewMemory())

	first := e.AddItem(ctx, model.Session{}, book("1", 1))
	e.AddItem(ctx, model.Session{}, book("2", 1))

	out := e.SetQuantity(ctx, model.Session{}, "1", 3)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("SetQuantity outcome = %+v", out)
	}
	out = e.RemoveItem(ctx, model.Session{}, "2")
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("RemoveItem outcome = %+v", out)
	}

	remote, _ := v.carts.GetCart(ctx, first.CartID)
	if len(remote.Lines) != 1 || remote.Lines[0].Quantity != 3 {
		t.Errorf("remote lines = %+v, want one line of 3", remote.Lines)
	}
	if e.ItemCount() != 3 {
		t.Errorf("ItemCount() = %d, want 3", e.ItemCount())
	}

	// Setting the same quantity is a no-op
	before := len(v.carts.Calls())
	e.SetQuantity(ctx, model.Session{}, "1", 3)
	if len(v.carts.Calls()) != before {
		t.Error("unchanged quantity should not sync")
	}
}

func TestEngine_ClearCart(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	cache := localcache.NewMemory()
	e := v.engine(t, cache)

	first := e.AddItem(ctx, shopper, book("1", 2))
	e.AddItem(ctx, shopper, book("2", 1))
	v.clock.Advance(pointer.DefaultDelay)

	out := e.ClearCart(ctx, shopper)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("ClearCart outcome = %+v", out)
	}

	snap := e.Snapshot()
	if len(snap.Items) != 0 || snap.RemoteCartID != "" {
		t.Errorf("snapshot = %+v, want empty and detached", snap)
	}
	remote, _ := v.carts.GetCart(ctx, first.CartID)
	if len(remote.Lines) != 0 {
		t.Errorf("remote lines = %d, want 0", len(remote.Lines))
	}
	if ptr, _ := cache.LoadPointer(ctx); ptr != "" {
		t.Errorf("local fallback pointer = %q, want cleared", ptr)
	}
	if id, found, _ := v.pointers.GetPointer(ctx, "cus_42"); !found || id != first.CartID {
		t.Errorf("identity pointer = %q, want retained", id)
	}

	// Clearing an already empty cart stays local
	if out := e.ClearCart(ctx, shopper); out.Kind != model.OutcomeLocalOnly {
		t.Errorf("second ClearCart outcome = %q, want local_only", out.Kind)
	}
}

func TestEngine_IdentityMismatchRepair(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	cache := localcache.NewMemory()
	v.carts.Put(model.RemoteCart{
		ID:            "gid://memory/Cart/old",
		Lines:         []model.RemoteLine{{LineID: "L1", VariantID: "1", Quantity: 1}},
		BuyerIdentity: model.BuyerIdentity{Email: "old@shop.io"},
	})
	_ = cache.SavePointer(ctx, "gid://memory/Cart/old")
	e := v.engine(t, cache)

	out := e.LoadFromRemote(ctx, shopper)

	if out.Kind != model.OutcomeApplied || out.Via != model.ViaLocal {
		t.Fatalf("outcome = %+v, want applied via local", out)
	}
	remote, _ := v.carts.GetCart(ctx, "gid://memory/Cart/old")
	if remote.BuyerIdentity.Email != "new@shop.io" {
		t.Errorf("remote email = %q, want new@shop.io", remote.BuyerIdentity.Email)
	}
	if e.ItemCount() != 1 {
		t.Errorf("ItemCount() = %d, want 1", e.ItemCount())
	}
}

func TestEngine_CrossDeviceDiscovery(t *testing.T) {
	ctx := context.Background()
	v := newEnv()

	laptop := v.engine(t, localcache.NewMemory())
	first := laptop.AddItem(ctx, shopper, book("1", 2))
	v.clock.Advance(pointer.DefaultDelay)

	phone := v.engine(t, localcache.NewMemory())
	out := phone.LoadFromRemote(ctx, shopper)

	if out.Kind != model.OutcomeApplied || out.Via != model.ViaPointer {
		t.Fatalf("outcome = %+v, want applied via pointer", out)
	}
	if out.CartID != first.CartID {
		t.Errorf("CartID = %q, want laptop cart %q", out.CartID, first.CartID)
	}
	if phone.ItemCount() != 2 {
		t.Errorf("ItemCount() = %d, want 2", phone.ItemCount())
	}
}

func TestEngine_RestoresFromCache(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	cache := localcache.NewMemory()

	e := v.engine(t, cache)
	e.AddItem(ctx, model.Session{}, book("1", 2))

	restarted := v.engine(t, cache)
	snap := restarted.Snapshot()
	if snap.ItemCount() != 2 || snap.RemoteCartID == "" {
		t.Errorf("restored snapshot = %+v", snap)
	}
}

func TestEngine_OfflineKeepsLocalCart(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	v.carts.BeforeCall = func(ctx context.Context, op, cartID string) error {
		return model.NewUpstreamError("memory", errors.New("dial tcp: connection refused"))
	}
	e := v.engine(t, localcache.NewMemory())

	out := e.AddItem(ctx, model.Session{}, book("1", 1))

	if out.Kind != model.OutcomeTransient || !out.OK() {
		t.Errorf("outcome = %+v, want transient (not a failure for the shopper)", out)
	}
	if e.ItemCount() != 1 {
		t.Errorf("ItemCount() = %d, want optimistic 1", e.ItemCount())
	}
}

func TestEngine_Checkout(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	e := v.engine(t, localcache.NewMemory())

	if _, out := e.Checkout(ctx, shopper); out.Kind != model.OutcomeRejected {
		t.Errorf("empty checkout outcome = %q, want rejected", out.Kind)
	}

	e.AddItem(ctx, shopper, book("1", 1))
	url, out := e.Checkout(ctx, shopper)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("Checkout outcome = %+v", out)
	}
	if url == "" {
		t.Error("checkout URL empty")
	}
	// Checkout flushes the identity pointer without waiting for the debounce
	if id, found, _ := v.pointers.GetPointer(ctx, "cus_42"); !found || id != out.CartID {
		t.Errorf("identity pointer = %q, want %q", id, out.CartID)
	}
}

func TestEngine_CheckoutAfterQueuedSyncFails(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	mem := adapter.NewMemoryCartService(nil)

	var failing atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	carts := &adapter.Mock{
		CreateCartFunc:          mem.CreateCart,
		GetCartFunc:             mem.GetCart,
		AddLinesFunc:            mem.AddLines,
		RemoveLinesFunc:         mem.RemoveLines,
		UpdateBuyerIdentityFunc: mem.UpdateBuyerIdentity,
		UpdateLinesFunc: func(ctx context.Context, id string, updates []model.LineUpdate) (*model.RemoteCart, error) {
			if !failing.Load() {
				return mem.UpdateLines(ctx, id, updates)
			}
			once.Do(func() { close(entered) })
			<-release
			return nil, model.NewUpstreamError("storefront", errors.New("timeout"))
		},
	}
	e, err := New(ctx, Deps{
		Carts:    carts,
		Pointers: v.pointers,
		Cache:    localcache.NewMemory(),
		Clock:    v.clock,
		Logger:   v.logger,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if out := e.AddItem(ctx, shopper, book("1", 1)); out.Kind != model.OutcomeApplied {
		t.Fatalf("AddItem outcome = %+v, want applied", out)
	}

	// A quantity change hangs in the backend, so checkout gets parked
	// behind it; both jobs then fail.
	failing.Store(true)
	go e.SetQuantity(ctx, shopper, "1", 2)
	<-entered

	type result struct {
		url string
		out model.Outcome
	}
	done := make(chan result, 1)
	go func() {
		url, out := e.Checkout(ctx, shopper)
		done <- result{url, out}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	got := <-done
	if got.out.Kind != model.OutcomeTransient {
		t.Errorf("Checkout outcome = %q, want transient", got.out.Kind)
	}
	if got.url != "" {
		t.Errorf("Checkout URL = %q, want none while the remote cart is behind", got.url)
	}

	failing.Store(false)
	url, out := e.Checkout(ctx, shopper)
	if out.Kind != model.OutcomeApplied || url == "" {
		t.Fatalf("Checkout after recovery = %q, %+v", url, out)
	}
	remote, err := mem.GetCart(ctx, out.CartID)
	if err != nil {
		t.Fatalf("GetCart error: %v", err)
	}
	if remote.Lines[0].Quantity != 2 {
		t.Errorf("remote quantity = %d, want 2", remote.Lines[0].Quantity)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(context.Background(), Deps{}); err == nil {
		t.Error("New without deps should fail")
	}
}

func TestEngine_RateLimitedCreateStaysLocal(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	var creates int
	carts := &adapter.Mock{
		CreateCartFunc: func(ctx context.Context, lines []model.LineInput, identity model.BuyerIdentity) (*model.RemoteCart, error) {
			creates++
			return nil, model.NewRateLimitError("storefront")
		},
	}
	e, err := New(ctx, Deps{
		Carts:    carts,
		Pointers: v.pointers,
		Cache:    localcache.NewMemory(),
		Clock:    v.clock,
		Logger:   v.logger,
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	out := e.AddItem(ctx, model.Session{}, book("1", 2))

	if out.Kind != model.OutcomeTransient {
		t.Errorf("outcome = %+v, want transient", out)
	}
	if creates != 1 {
		t.Errorf("CreateCart calls = %d, want 1", creates)
	}
	if got := e.Snapshot(); got.RemoteCartID != "" || got.ItemCount() != 2 {
		t.Errorf("snapshot = %+v, want local-only cart with 2 items", got)
	}
}
