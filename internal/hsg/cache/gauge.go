package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// InFlightGauge tracks the process-wide count of queries currently
// executing, and the decay engine's last-run cooldown timestamp, per §5's
// "in-flight gauge" and §4.9's 60s cooldown.
type InFlightGauge interface {
	Enter(ctx context.Context)
	Exit(ctx context.Context)
	Count(ctx context.Context) int64
	// MarkDecayRun records now as the last decay pass time.
	MarkDecayRun(ctx context.Context, now time.Time)
	// CooledDown reports whether at least cooldown has elapsed since the
	// last recorded decay run.
	CooledDown(ctx context.Context, now time.Time, cooldown time.Duration) bool
}

type localGauge struct {
	count    int64
	lastRun  atomic.Int64 // unix millis; 0 = never run
}

// NewLocalGauge constructs the default single-process in-flight gauge.
func NewLocalGauge() InFlightGauge { return &localGauge{} }

func (g *localGauge) Enter(context.Context) { atomic.AddInt64(&g.count, 1) }
func (g *localGauge) Exit(context.Context)  { atomic.AddInt64(&g.count, -1) }
func (g *localGauge) Count(context.Context) int64 { return atomic.LoadInt64(&g.count) }

func (g *localGauge) MarkDecayRun(_ context.Context, now time.Time) {
	g.lastRun.Store(now.UnixMilli())
}

func (g *localGauge) CooledDown(_ context.Context, now time.Time, cooldown time.Duration) bool {
	last := g.lastRun.Load()
	if last == 0 {
		return true
	}
	return now.Sub(time.UnixMilli(last)) >= cooldown
}

// redisGauge shares the in-flight count and decay-cooldown timestamp across
// processes via Redis INCR/DECR and a simple key, so a fleet of decay
// schedulers agree on a single cooldown clock.
type redisGauge struct {
	client  redis.UniversalClient
	countKey string
	lastKey  string
}

// NewRedisGauge constructs a Redis-backed InFlightGauge.
func NewRedisGauge(client redis.UniversalClient) InFlightGauge {
	return &redisGauge{client: client, countKey: "hsg:inflight", lastKey: "hsg:decay:last_run"}
}

func (g *redisGauge) Enter(ctx context.Context) { g.client.Incr(ctx, g.countKey) }
func (g *redisGauge) Exit(ctx context.Context)  { g.client.Decr(ctx, g.countKey) }

func (g *redisGauge) Count(ctx context.Context) int64 {
	v, err := g.client.Get(ctx, g.countKey).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (g *redisGauge) MarkDecayRun(ctx context.Context, now time.Time) {
	g.client.Set(ctx, g.lastKey, now.UnixMilli(), 0)
}

func (g *redisGauge) CooledDown(ctx context.Context, now time.Time, cooldown time.Duration) bool {
	v, err := g.client.Get(ctx, g.lastKey).Int64()
	if err != nil {
		return true
	}
	return now.Sub(time.UnixMilli(v)) >= cooldown
}
