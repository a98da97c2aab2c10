// Package cache implements the C10 query-result cache: a bounded
// (cache_key -> (result, ts)) mapping with a 60s TTL, backed by an
// in-process mutex-guarded map default or a Redis-backed variant for multi-process
// deployments sharing one store.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is the cache entry lifetime (§6 "cache TTL 60 s").
const DefaultTTL = 60 * time.Second

// QueryCache is the pluggable interface the retrieval engine's result cache
// is built on.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}
