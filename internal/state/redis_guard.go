package state

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisGuard struct {
	client *redis.Client
	prefix string
}

// NewRedisGuard creates a Redis-backed single-use guard.
func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{
		client: client,
		prefix: "link_state:",
	}
}

func (r *RedisGuard) key(id string) string {
	return r.prefix + id
}

// Consume uses SETNX so that only the first caller wins; the key
// expires together with the state token it shadows.
func (r *RedisGuard) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return r.client.SetNX(ctx, r.key(id), "1", ttl).Result()
}
