package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheGetSetRoundTrip(t *testing.T) {
	c := NewMemory(0)
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	require.False(t, ok)

	c.Set(ctx, "k", []byte("v"), DefaultTTL)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemory(0)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
}

func TestMemoryCacheEvictsOldestBeyondBound(t *testing.T) {
	c := NewMemory(2)
	ctx := context.Background()
	c.Set(ctx, "a", []byte("1"), DefaultTTL)
	c.Set(ctx, "b", []byte("2"), DefaultTTL)
	c.Set(ctx, "c", []byte("3"), DefaultTTL)

	_, ok := c.Get(ctx, "a")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get(ctx, "c")
	require.True(t, ok)
}

func TestLocalGaugeEnterExit(t *testing.T) {
	g := NewLocalGauge()
	ctx := context.Background()
	require.Equal(t, int64(0), g.Count(ctx))
	g.Enter(ctx)
	g.Enter(ctx)
	require.Equal(t, int64(2), g.Count(ctx))
	g.Exit(ctx)
	require.Equal(t, int64(1), g.Count(ctx))
}

func TestLocalGaugeCooldown(t *testing.T) {
	g := NewLocalGauge()
	ctx := context.Background()
	now := time.Now()
	require.True(t, g.CooledDown(ctx, now, time.Minute), "never run is always cooled down")

	g.MarkDecayRun(ctx, now)
	require.False(t, g.CooledDown(ctx, now.Add(time.Second), time.Minute))
	require.True(t, g.CooledDown(ctx, now.Add(2*time.Minute), time.Minute))
}
