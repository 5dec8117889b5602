package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// bindingKey is the hash holding the authoritative CN→uid mapping.
const bindingKey = "certcn:uid"

// RedisBindings implements the certificate binding store on a Redis
// hash, one field per certificate CN.
type RedisBindings struct {
	client *redis.Client
}

func NewRedisBindings(client *redis.Client) *RedisBindings {
	return &RedisBindings{client: client}
}

// GetField returns the uid bound to cn, or 0 when cn is unbound.
func (r *RedisBindings) GetField(ctx context.Context, cn string) (int64, error) {
	val, err := r.client.HGet(ctx, bindingKey, cn).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: hget %s: %w", bindingKey, err)
	}
	uid, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: malformed uid %q for CN: %w", val, err)
	}
	return uid, nil
}

func (r *RedisBindings) SetField(ctx context.Context, cn string, uid int64) error {
	if err := r.client.HSet(ctx, bindingKey, cn, uid).Err(); err != nil {
		return fmt.Errorf("store: hset %s: %w", bindingKey, err)
	}
	return nil
}

func (r *RedisBindings) DeleteField(ctx context.Context, cn string) error {
	if err := r.client.HDel(ctx, bindingKey, cn).Err(); err != nil {
		return fmt.Errorf("store: hdel %s: %w", bindingKey, err)
	}
	return nil
}
