package cache

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/redis"
)

// RedisBackend keeps entries in Redis under the search: prefix.
type RedisBackend struct {
	client *pkgredis.Client
}

func NewRedisBackend(client *pkgredis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key)
	if pkgredis.IsNilError(err) {
		return nil, apperrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl)
}

func (b *RedisBackend) Flush(ctx context.Context) (int64, error) {
	return b.client.FlushByPattern(ctx, keyPrefix+"*")
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}
