package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/services"
	"github.com/glyhealth/diabetes-insights-backend/internal/utils"
)

// TripleCache is a redis-backed implementation of the recommendation cache,
// for deployments that run more than one API replica and want them to share
// provider responses. Selected with RECOMMENDATION_CACHE_BACKEND=redis.
type TripleCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewTripleCache(log *logger.Logger) (*TripleCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttlSec := utils.GetEnvAsInt("RECOMMENDATION_CACHE_TTL_SECONDS", 3600, log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &TripleCache{
		log:    log.With("client", "RedisTripleCache"),
		rdb:    rdb,
		prefix: "recommendation:",
		ttl:    time.Duration(ttlSec) * time.Second,
	}, nil
}

func (c *TripleCache) Get(ctx context.Context, key string) (services.RecommendationTriple, bool) {
	var triple services.RecommendationTriple
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("Redis GET failed", "error", err)
		}
		return triple, false
	}
	if err := json.Unmarshal(raw, &triple); err != nil {
		c.log.Warn("Cached recommendation is not valid JSON, ignoring", "error", err)
		return triple, false
	}
	return triple, true
}

func (c *TripleCache) Set(ctx context.Context, key string, triple services.RecommendationTriple) {
	raw, err := json.Marshal(triple)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("Redis SET failed", "error", err)
	}
}

func (c *TripleCache) Close() error {
	return c.rdb.Close()
}
