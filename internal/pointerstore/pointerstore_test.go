package pointerstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, found, err := store.GetPointer(ctx, "cus_1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetPointer(ctx, "cus_1", "cart-a"))
	require.NoError(t, store.SetPointer(ctx, "cus_1", "cart-b"))

	id, found, err := store.GetPointer(ctx, "cus_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "cart-b", id)
}

func TestDocID(t *testing.T) {
	a := docID("email:a@shop.io")
	assert.Len(t, a, 64)
	assert.Equal(t, a, docID("email:a@shop.io"))
	assert.NotEqual(t, a, docID("email:b@shop.io"))
	assert.NotContains(t, a, "@")
}

func TestFirestore_NilClient(t *testing.T) {
	var f *Firestore
	_, _, err := f.GetPointer(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, (&Firestore{}).SetPointer(context.Background(), "k", "v"))
}

// Requires a reachable Redis; set REDIS_ADDR to run.
func TestRedis_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	prefix := "test:cart:pointer:" + uuid.NewString() + ":"
	store := NewRedisWithClient(client, prefix, time.Minute)

	_, found, err := store.GetPointer(ctx, "cus_1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetPointer(ctx, "cus_1", "cart-a"))
	id, found, err := store.GetPointer(ctx, "cus_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "cart-a", id)

	ttl, err := client.TTL(ctx, prefix+"cus_1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

// Requires the Firestore emulator; set FIRESTORE_EMULATOR_HOST to run.
func TestFirestore_Integration(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" || testing.Short() {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()

	store, err := NewFirestore(ctx, "cartsync-test", "pointers_"+uuid.NewString(), "")
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.GetPointer(ctx, "email:a@shop.io")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetPointer(ctx, "email:a@shop.io", "gid://shopify/Cart/c1"))
	id, found, err := store.GetPointer(ctx, "email:a@shop.io")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "gid://shopify/Cart/c1", id)
}
