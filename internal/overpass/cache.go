package overpass

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/geocode/internal/logger"
	"github.com/EmpoweredVote/geocode/internal/metrics"
)

// Cache stores raw Overpass responses keyed by coordinate.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// NoCache never hits.
type NoCache struct{}

func (NoCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NoCache) Set(context.Context, string, []byte)         {}

// RedisCache keeps responses in Redis with a fixed TTL.
type RedisCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisCache wraps a redis client. A zero ttl keeps entries forever.
func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		metrics.ElementCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	case err != nil:
		metrics.ElementCacheTotal.WithLabelValues("error").Inc()
		logger.L().Warn("element cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	metrics.ElementCacheTotal.WithLabelValues("hit").Inc()
	return b, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		logger.L().Warn("element cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// CacheKey is the cache key of a coordinate.
func CacheKey(lat, lon float64) string {
	return "overpass:" + formatCoord(lat) + "_" + formatCoord(lon)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
