package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// redisCache is a Redis-backed QueryCache for multi-process deployments
// sharing one memory store, mirroring this codebase's
// RedisGenerationCache connection setup.
type redisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis constructs a Redis-backed QueryCache. addr is a host:port; db
// selects the logical database index.
func NewRedis(addr, password string, db int) (QueryCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &redisCache{client: client, prefix: "hsg:query:"}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Debug().Err(err).Msg("hsg: redis query cache get failed")
		return nil, false
	}
	return v, true
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		log.Debug().Err(err).Msg("hsg: redis query cache set failed")
	}
}
