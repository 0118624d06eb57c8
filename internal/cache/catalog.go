// Package cache provides read-through caches for the exercise catalog listing.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CatalogKey is the Redis key holding the JSON-encoded catalog listing.
const CatalogKey = "gymlog:catalog:names"

// GenerationKey counts catalog invalidations. A listing is only written while
// the counter still holds the value observed on the preceding miss.
const GenerationKey = "gymlog:catalog:generation"

// storeIfCurrent sets KEYS[1] to ARGV[2] when KEYS[2] still equals ARGV[1].
// ARGV[3] is the TTL in milliseconds; zero keeps the key without expiry.
var storeIfCurrent = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current ~= tonumber(ARGV[1]) then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// NoopCatalog never hits and never stores.
type NoopCatalog struct{}

// Names always misses.
func (NoopCatalog) Names(context.Context) ([]string, int64, bool, error) { return nil, 0, false, nil }

// StoreNames performs no action.
func (NoopCatalog) StoreNames(context.Context, []string, int64) error { return nil }

// Invalidate performs no action.
func (NoopCatalog) Invalidate(context.Context) error { return nil }

// RedisCatalog stores the listing under CatalogKey with a TTL, guarded by the
// invalidation counter under GenerationKey.
type RedisCatalog struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCatalog constructs a RedisCatalog.
func NewRedisCatalog(client redis.Cmdable, ttl time.Duration) *RedisCatalog {
	return &RedisCatalog{client: client, ttl: ttl}
}

// Names returns the cached listing, reporting false on a miss. The current
// generation is returned with both hits and misses.
func (c *RedisCatalog) Names(ctx context.Context) ([]string, int64, bool, error) {
	vals, err := c.client.MGet(ctx, CatalogKey, GenerationKey).Result()
	if err != nil {
		return nil, 0, false, err
	}
	generation, err := parseGeneration(vals[1])
	if err != nil {
		return nil, 0, false, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, generation, false, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, generation, false, err
	}
	return names, generation, true, nil
}

// StoreNames caches the listing unless the catalog was invalidated after
// generation was read.
func (c *RedisCatalog) StoreNames(ctx context.Context, names []string, generation int64) error {
	if names == nil {
		names = []string{}
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return storeIfCurrent.Run(ctx, c.client,
		[]string{CatalogKey, GenerationKey},
		generation, raw, c.ttl.Milliseconds(),
	).Err()
}

// Invalidate advances the generation and drops the cached listing.
func (c *RedisCatalog) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, GenerationKey)
		pipe.Del(ctx, CatalogKey)
		return nil
	})
	return err
}

func parseGeneration(v interface{}) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("catalog generation has type %T", v)
	}
	return strconv.ParseInt(s, 10, 64)
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
