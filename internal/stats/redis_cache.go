package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	keyPrefix       = "leafscan:stats:"
	genPrefix       = "leafscan:stats-gen:"
)

// RedisCache keeps computed Stats in Redis as JSON under
// leafscan:stats:{uid}:{gen}. The generation counter has no TTL; stats
// entries expire after ttl.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ Cache = (*RedisCache)(nil)

// NewRedisClient connects and pings once.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func statsKey(userID string, gen int64) string {
	return keyPrefix + userID + ":" + strconv.FormatInt(gen, 10)
}

// Generation returns the user's current generation, 0 before the first
// invalidation.
func (c *RedisCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, genPrefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) Get(ctx context.Context, userID string, gen int64) (Stats, bool, error) {
	raw, err := c.rdb.Get(ctx, statsKey(userID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Stats{}, false, nil
	}
	if err != nil {
		return Stats{}, false, err
	}

	var s Stats
	if err := json.Unmarshal(raw, &s); err != nil {
		return Stats{}, false, fmt.Errorf("decode cached stats: %w", err)
	}
	if s.DiseaseCounts == nil {
		s.DiseaseCounts = map[string]int{}
	}
	return s, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, gen int64, s Stats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey(userID, gen), raw, c.ttl).Err()
}

// Invalidate moves the user to the next generation. It satisfies
// history.Invalidator.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Incr(ctx, genPrefix+userID).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
