package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cartsync/internal/adapter"
	"cartsync/internal/clock"
	"cartsync/internal/localcache"
	"cartsync/internal/localcart"
	"cartsync/internal/model"
	"cartsync/internal/pointer"
	"cartsync/internal/pointerstore"
	"cartsync/internal/resolver"
	"cartsync/internal/stock"
)

type harness struct {
	carts    *adapter.MemoryCartService
	pointers *pointerstore.Memory
	cache    *localcache.Memory
	clock    *clock.Manual
	store    *localcart.Store
	coord    *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		carts: adapter.NewMemoryCartService(map[string]model.Merchandise{
			"9": {Title: "Added elsewhere", UnitPrice: decimal.NewFromInt(7), IsAvailable: true},
		}),
		pointers: pointerstore.NewMemory(),
		cache:    localcache.NewMemory(),
		clock:    clock.NewManual(time.Unix(0, 0)),
	}
	h.store = localcart.New(h.cache, logger)
	persister := pointer.NewManager(h.pointers, h.clock, logger)
	res := resolver.New(h.carts, h.pointers, h.cache, persister, logger)
	h.coord = New(h.carts, res, h.store, logger, nil)
	return h
}

// request captures the store state the way the engine does after a mutation.
func (h *harness) request(session model.Session) Request {
	snap := h.store.Snapshot()
	return Request{Items: snap.Items, CartID: snap.RemoteCartID, Session: session, Revision: snap.Revision}
}

func (h *harness) add(t *testing.T, id string, qty int) {
	t.Helper()
	if _, err := h.store.ApplyAdd(context.Background(), model.CartItem{VariantID: id, Quantity: qty, Title: "item " + id}, stock.CanIncrease); err != nil {
		t.Fatalf("ApplyAdd(%s) error: %v", id, err)
	}
}

var customer = model.Session{Authenticated: true, CustomerKey: "cus_1", Identity: model.BuyerIdentity{Email: "a@shop.io"}}

func TestSync_FreshAddCreatesCart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "gid://shopify/ProductVariant/1", 2)

	out := h.coord.RequestSync(ctx, h.request(customer))

	if out.Kind != model.OutcomeApplied || out.Via != model.ViaCreated {
		t.Fatalf("outcome = %+v, want applied via created", out)
	}
	snap := h.store.Snapshot()
	if snap.RemoteCartID != out.CartID {
		t.Errorf("RemoteCartID = %q, want %q", snap.RemoteCartID, out.CartID)
	}
	remote, _ := h.carts.GetCart(ctx, out.CartID)
	if len(remote.Lines) != 1 || remote.Lines[0].Quantity != 2 {
		t.Errorf("remote lines = %+v, want one line of 2", remote.Lines)
	}
	if snap.Items[0].Title != "item gid://shopify/ProductVariant/1" {
		t.Errorf("local metadata lost: %+v", snap.Items[0])
	}

	h.clock.Advance(pointer.DefaultDelay)
	if id, found, _ := h.pointers.GetPointer(ctx, "cus_1"); !found || id != out.CartID {
		t.Errorf("identity pointer = %q, want %q", id, out.CartID)
	}
}

func TestSync_QuantityUpdateReusesLine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "1", 1)
	first := h.coord.RequestSync(ctx, h.request(customer))
	remote, _ := h.carts.GetCart(ctx, first.CartID)
	lineID := remote.Lines[0].LineID

	_, _ = h.store.ApplySetQuantity(ctx, "1", 3, stock.CanIncrease)
	before := len(h.carts.Calls())
	out := h.coord.RequestSync(ctx, h.request(customer))

	if out.Kind != model.OutcomeApplied || out.Via != model.ViaKnown {
		t.Fatalf("outcome = %+v, want applied via known", out)
	}
	calls := h.carts.Calls()[before:]
	for _, c := range calls {
		if c == adapter.OpAdd || c == adapter.OpRemove || c == adapter.OpCreate {
			t.Errorf("unexpected %q call in %v", c, calls)
		}
	}
	remote, _ = h.carts.GetCart(ctx, first.CartID)
	if len(remote.Lines) != 1 || remote.Lines[0].LineID != lineID || remote.Lines[0].Quantity != 3 {
		t.Errorf("remote lines = %+v, want %s with quantity 3", remote.Lines, lineID)
	}
}

func TestSync_IdempotentResync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "1", 1)
	h.add(t, "2", 4)
	h.coord.RequestSync(ctx, h.request(customer))

	before := len(h.carts.Calls())
	out := h.coord.RequestSync(ctx, h.request(customer))

	if out.Kind != model.OutcomeApplied {
		t.Fatalf("outcome = %+v", out)
	}
	calls := h.carts.Calls()[before:]
	if len(calls) != 1 || calls[0] != adapter.OpGet {
		t.Errorf("calls = %v, want a single get", calls)
	}
}

func TestSync_DetachEmptiesWithoutAdopting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "1", 1)
	h.add(t, "2", 2)
	first := h.coord.RequestSync(ctx, h.request(customer))
	h.clock.Advance(pointer.DefaultDelay)

	before, after := h.store.ApplyClear(ctx)
	out := h.coord.RequestSync(ctx, Request{
		CartID:   before.RemoteCartID,
		Session:  customer,
		Revision: after.Revision,
		Detach:   true,
	})

	if out.Kind != model.OutcomeApplied {
		t.Fatalf("outcome = %+v", out)
	}
	remote, _ := h.carts.GetCart(ctx, first.CartID)
	if len(remote.Lines) != 0 {
		t.Errorf("remote lines = %d, want 0", len(remote.Lines))
	}
	if snap := h.store.Snapshot(); snap.RemoteCartID != "" {
		t.Errorf("RemoteCartID = %q, want empty after clear", snap.RemoteCartID)
	}
	// The identity pointer is never deleted
	if id, found, _ := h.pointers.GetPointer(ctx, "cus_1"); !found || id != first.CartID {
		t.Errorf("identity pointer = %q (found=%v), want retained", id, found)
	}
}

func TestSync_StaleResultIsDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "1", 1)
	req := h.request(customer)

	// The shopper changes the cart while the request is in flight
	h.carts.BeforeCall = func(ctx context.Context, op, cartID string) error {
		if op == adapter.OpCreate {
			_, _ = h.store.ApplySetQuantity(ctx, "1", 5, stock.CanIncrease)
		}
		return nil
	}

	out := h.coord.RequestSync(ctx, req)

	if out.Kind != model.OutcomeStale {
		t.Fatalf("outcome = %+v, want stale", out)
	}
	snap := h.store.Snapshot()
	if snap.Items[0].Quantity != 5 {
		t.Errorf("Quantity = %d, want newer local 5", snap.Items[0].Quantity)
	}
	if snap.RemoteCartID == "" {
		t.Error("remote cart id should be adopted even when items are stale")
	}
}

func TestSync_TransientFailureKeepsLocalState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "1", 2)
	h.carts.BeforeCall = func(ctx context.Context, op, cartID string) error {
		return model.NewUpstreamError("memory", errors.New("connection reset"))
	}

	out := h.coord.RequestSync(ctx, h.request(customer))

	if out.Kind != model.OutcomeTransient || out.Err == nil {
		t.Fatalf("outcome = %+v, want transient with error", out)
	}
	snap := h.store.Snapshot()
	if len(snap.Items) != 1 || snap.Items[0].Quantity != 2 {
		t.Errorf("local items = %+v, want optimistic state kept", snap.Items)
	}
}

func TestSync_MissingKnownCartIsRecreated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "1", 1)
	first := h.coord.RequestSync(ctx, h.request(customer))
	h.carts.Delete(first.CartID)

	h.add(t, "2", 1)
	out := h.coord.RequestSync(ctx, h.request(customer))

	if out.Kind != model.OutcomeFallback || out.Via != model.ViaCreated {
		t.Fatalf("outcome = %+v, want fallback via created", out)
	}
	if out.CartID == first.CartID {
		t.Error("expected a new cart id")
	}
	remote, _ := h.carts.GetCart(ctx, out.CartID)
	if len(remote.Lines) != 2 {
		t.Errorf("remote lines = %d, want 2", len(remote.Lines))
	}
}

func TestSync_PicksUpLinesFromOtherDevices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "1", 1)
	first := h.coord.RequestSync(ctx, h.request(customer))

	// Another device adds variant 9 to the same cart
	_, _ = h.carts.AddLines(ctx, first.CartID, []model.LineInput{{VariantID: "9", Quantity: 1}})

	out := h.coord.Load(ctx, customer)
	if out.Kind != model.OutcomeApplied {
		t.Fatalf("Load outcome = %+v", out)
	}
	snap := h.store.Snapshot()
	if len(snap.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(snap.Items))
	}
	if snap.Items[1].Title != "Added elsewhere" || !snap.Items[1].UnitPrice.Equal(decimal.NewFromInt(7)) {
		t.Errorf("item from other device = %+v", snap.Items[1])
	}
}

func TestLoad_FindsCartThroughIdentityPointer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.carts.Put(model.RemoteCart{
		ID:            "gid://memory/Cart/elsewhere",
		Lines:         []model.RemoteLine{{LineID: "L1", VariantID: "9", Quantity: 2}},
		BuyerIdentity: model.BuyerIdentity{Email: "a@shop.io"},
	})
	_ = h.pointers.SetPointer(ctx, "cus_1", "gid://memory/Cart/elsewhere")

	out := h.coord.Load(ctx, customer)

	if out.Kind != model.OutcomeApplied || out.Via != model.ViaPointer {
		t.Fatalf("outcome = %+v, want applied via pointer", out)
	}
	snap := h.store.Snapshot()
	if snap.RemoteCartID != "gid://memory/Cart/elsewhere" || snap.ItemCount() != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestLoad_AnonymousWithoutPointerIsLocalOnly(t *testing.T) {
	h := newHarness(t)

	out := h.coord.Load(context.Background(), model.Session{})

	if out.Kind != model.OutcomeLocalOnly {
		t.Errorf("outcome = %+v, want local_only", out)
	}
	if h.carts.CountCalls(adapter.OpCreate) != 0 {
		t.Error("load must never create a cart")
	}
}

func TestRequestSync_SingleFlightCoalescesToLatest(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	entered := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	h.carts.BeforeCall = func(ctx context.Context, op, cartID string) error {
		if op == adapter.OpCreate {
			once.Do(func() { close(entered) })
			<-gate
		}
		return nil
	}

	h.add(t, "1", 1)
	firstReq := h.request(customer)
	firstDone := make(chan model.Outcome, 1)
	go func() { firstDone <- h.coord.RequestSync(ctx, firstReq) }()
	<-entered

	// Three more mutations while the first job is in flight
	for _, id := range []string{"2", "3", "4"} {
		h.add(t, id, 1)
		out := h.coord.RequestSync(ctx, h.request(customer))
		if out.Kind != model.OutcomeQueued {
			t.Errorf("outcome = %+v, want queued", out)
		}
	}
	if !h.coord.Busy() {
		t.Error("Busy() = false while job in flight")
	}

	close(gate)
	first := <-firstDone
	if first.Kind != model.OutcomeStale {
		t.Errorf("first outcome = %q, want stale (superseded)", first.Kind)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.coord.WaitIdle(waitCtx); err != nil {
		t.Fatalf("WaitIdle error: %v", err)
	}

	// One creation, and exactly two jobs ran in total
	if n := h.carts.CountCalls(adapter.OpCreate); n != 1 {
		t.Errorf("creates = %d, want 1", n)
	}
	if n := h.carts.CountCalls(adapter.OpAdd); n != 1 {
		t.Errorf("add calls = %d, want 1 (pending slot holds only the latest)", n)
	}
	snap := h.store.Snapshot()
	remote, _ := h.carts.GetCart(ctx, snap.RemoteCartID)
	if len(remote.Lines) != 4 {
		t.Errorf("remote lines = %d, want 4", len(remote.Lines))
	}
	if len(snap.Items) != 4 {
		t.Errorf("local items = %d, want 4", len(snap.Items))
	}
}

func TestExclusive_WaitsForInFlightSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	entered := make(chan struct{})
	gate := make(chan struct{})
	h.carts.BeforeCall = func(ctx context.Context, op, cartID string) error {
		if op == adapter.OpCreate {
			close(entered)
			<-gate
		}
		return nil
	}
	h.add(t, "1", 1)
	go h.coord.RequestSync(ctx, h.request(customer))
	<-entered

	ran := make(chan struct{})
	go func() {
		_ = h.coord.Exclusive(ctx, func(ctx context.Context) error {
			close(ran)
			return nil
		})
	}()

	select {
	case <-ran:
		t.Fatal("exclusive section ran while a sync was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("exclusive section never ran")
	}
}

func TestExclusive_ContextCancelled(t *testing.T) {
	h := newHarness(t)
	h.coord.mu.Lock()
	h.coord.claimLocked()
	h.coord.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.coord.Exclusive(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
