package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// Cache is a string cache for query expansions.  Keys arrive already
// namespaced by the pipeline (a digest of the wrapped idea); the client-wide
// prefix is applied on top.
type Cache struct {
	client     *Client
	defaultTTL time.Duration
	log        logging.Logger
}

func NewCache(client *Client, defaultTTL time.Duration, log logging.Logger) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = client.cfg.DefaultTTL
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Cache{client: client, defaultTTL: defaultTTL, log: log.Named("cache")}
}

// Get returns the cached value and whether it was present.  A miss is not
// an error.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	if c.client.isClosed() {
		return "", false, ErrClientClosed
	}
	val, err := c.client.Raw().Get(ctx, c.client.Key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeCacheError, "cache get failed")
	}
	return val, true, nil
}

// Set stores the value with the given TTL, falling back to the default TTL
// when zero.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.client.isClosed() {
		return ErrClientClosed
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Raw().Set(ctx, c.client.Key(key), value, ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache set failed")
	}
	return nil
}

// Delete removes keys.  Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c.client.isClosed() {
		return ErrClientClosed
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.client.Key(k)
	}
	if err := c.client.Raw().Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache delete failed")
	}
	return nil
}
