package pointerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cartsync/internal/adapter"
)

const defaultKeyPrefix = "cart:pointer:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // 0 = pointers never expire
}

// Redis stores pointers as plain string keys.
// Suitable when several cartd instances share discovery state.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisWithClient(client, "", cfg.TTL), nil
}

// NewRedisWithClient creates a store with an existing client.
// Useful for tests or when sharing a client across components.
func NewRedisWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Redis{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *Redis) GetPointer(ctx context.Context, key string) (string, bool, error) {
	id, err := r.client.Get(ctx, r.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cart pointer: %w", err)
	}
	return id, true, nil
}

// SetPointer upserts the pointer, refreshing the TTL when one is configured.
func (r *Redis) SetPointer(ctx context.Context, key, cartID string) error {
	if err := r.client.Set(ctx, r.keyPrefix+key, cartID, r.ttl).Err(); err != nil {
		return fmt.Errorf("set cart pointer: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ adapter.PointerStore = (*Redis)(nil)
