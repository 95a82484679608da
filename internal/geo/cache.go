package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

// absentCode marks a cached lookup that resolved to nothing.
const absentCode = "-"

// CachedResolver is a Redis read-through cache in front of another resolver.
type CachedResolver struct {
	next   Resolver
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(next Resolver, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(p chatguessr.LatLng) string {
	return fmt.Sprintf("streakcode:%.5f,%.5f", p.Lat, p.Lng)
}

func (c *CachedResolver) Resolve(ctx context.Context, p chatguessr.LatLng) (string, bool, error) {
	key := cacheKey(p)

	cached, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == absentCode {
			return "", false, nil
		}
		return cached, true, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("streak code cache read failed", "key", key, "error", err)
	}

	code, ok, err := c.next.Resolve(ctx, p)
	if err != nil {
		return "", false, err
	}

	value := code
	if !ok {
		value = absentCode
	}
	if err := c.rdb.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("streak code cache write failed", "key", key, "error", err)
	}
	return code, ok, nil
}
