package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through JSON cache in front of event reads.
type Cache struct {
	rdb    redis.Cmdable
	flight singleflight.Group
}

func New(rdb redis.Cmdable) *Cache {
	return &Cache{rdb: rdb}
}

// GetOrSetJSON returns the cached value for key, calling loader on a miss.
// Concurrent misses for the same key share one loader call. An entry that
// cannot be read or decoded counts as a miss, so Redis trouble degrades to
// reading from the loader. A nil cache always calls loader.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	if v, ok := lookup[T](ctx, c.rdb, key); ok {
		return v, nil
	}

	res, err, _ := c.flight.Do(key, func() (any, error) {
		if v, ok := lookup[T](ctx, c.rdb, key); ok {
			return v, nil
		}

		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		if b, err := json.Marshal(v); err == nil {
			_ = c.rdb.Set(ctx, key, string(b), ttl).Err()
		}

		return v, nil
	})

	var zero T
	if err != nil {
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("cache %s: unexpected %T", key, res)
	}

	return v, nil
}

func lookup[T any](ctx context.Context, rdb redis.Cmdable, key string) (T, bool) {
	var v T

	b, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return v, false
	}

	if err := json.Unmarshal(b, &v); err != nil {
		return v, false
	}

	return v, true
}

// InvalidateEvent drops the cached copy of the event.
func (c *Cache) InvalidateEvent(ctx context.Context, eventID int64) error {
	return c.rdb.Del(ctx, KeyEvent(eventID)).Err()
}
