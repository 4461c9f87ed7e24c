package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cartsync/internal/localcache"
	"cartsync/internal/model"
)

func TestRegistry_GetAndSweep(t *testing.T) {
	v := newEnv()
	built := 0
	r := NewRegistry(func(ctx context.Context, sessionID string) (*Engine, error) {
		built++
		return v.engine(t, localcache.NewMemory()), nil
	}, time.Minute, v.logger, nil)

	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	a1, _ := r.Get(context.Background(), "a")
	a2, _ := r.Get(context.Background(), "a")
	if a1 != a2 {
		t.Error("same session should return the same engine")
	}
	_, _ = r.Get(context.Background(), "b")
	if built != 2 || r.Len() != 2 {
		t.Fatalf("built = %d, Len() = %d, want 2, 2", built, r.Len())
	}

	now = now.Add(30 * time.Second)
	_, _ = r.Get(context.Background(), "b")

	now = now.Add(45 * time.Second)
	if n := r.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1 (only a is idle)", n)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_SweepKeepsWatchedEngine(t *testing.T) {
	ctx := context.Background()
	v := newEnv()
	r := NewRegistry(func(ctx context.Context, sessionID string) (*Engine, error) {
		return v.engine(t, localcache.NewMemory()), nil
	}, time.Minute, v.logger, nil)

	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	watched, _ := r.Get(ctx, "s")
	carts, stop := watched.Subscribe()
	<-carts // initial snapshot

	now = now.Add(2 * time.Minute)
	if n := r.Sweep(); n != 0 {
		t.Fatalf("Sweep() = %d, want 0 while the cart is watched", n)
	}

	again, _ := r.Get(ctx, "s")
	if again != watched {
		t.Fatal("Get after sweep returned a new engine for a watched session")
	}
	again.AddItem(ctx, model.Session{}, book("1", 1))
	select {
	case cart := <-carts:
		if cart.ItemCount() != 1 {
			t.Errorf("subscriber ItemCount() = %d, want 1", cart.ItemCount())
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber got no snapshot after AddItem")
	}

	// The idle clock restarts once the stream ends.
	stop()
	now = now.Add(30 * time.Second)
	if n := r.Sweep(); n != 0 {
		t.Errorf("Sweep() = %d, want 0 right after the stream ended", n)
	}
	now = now.Add(2 * time.Minute)
	if n := r.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1 once idle past the TTL", n)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(func(ctx context.Context, sessionID string) (*Engine, error) {
		return nil, boom
	}, 0, newEnv().logger, nil)

	if _, err := r.Get(context.Background(), "a"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_ConcurrentFirstUseBuildsOnce(t *testing.T) {
	v := newEnv()
	var built atomic.Int32
	release := make(chan struct{})
	r := NewRegistry(func(ctx context.Context, sessionID string) (*Engine, error) {
		built.Add(1)
		<-release
		return v.engine(t, localcache.NewMemory()), nil
	}, time.Minute, v.logger, nil)

	const callers = 8
	engines := make(chan *Engine, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := r.Get(context.Background(), "tab")
			if err != nil {
				t.Errorf("Get error: %v", err)
			}
			engines <- e
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(engines)

	var first *Engine
	for e := range engines {
		if first == nil {
			first = e
		}
		if e != first {
			t.Error("concurrent callers got different engines")
		}
	}
	// Callers arriving after the build finished hit the map instead.
	if n := built.Load(); n != 1 {
		t.Errorf("factory calls = %d, want 1", n)
	}
}
