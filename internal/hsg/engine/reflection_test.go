package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"hsg/internal/hsg/config"
	"hsg/internal/hsg/embedder"
	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/store"
	"hsg/internal/hsg/types"
	"hsg/internal/hsg/vectorstore"
)

func newReflectionTestEngine(minMems int) *Engine {
	return New(store.NewMemory(), vectorstore.NewMemory(), embedder.NewSynthetic(64), config.Config{ReflectMinMemories: minMems})
}

func seedMemory(t *testing.T, e *Engine, id, userID, content string, sec sector.Sector, createdAt int64) {
	t.Helper()
	require.NoError(t, e.Store.InsertMemory(context.Background(), &types.Memory{
		ID: id, UserID: userID, Content: content, PrimarySector: sec,
		Sectors: []sector.Sector{sec}, CreatedAt: createdAt, UpdatedAt: createdAt,
		LastSeenAt: createdAt, Salience: 0.5,
	}))
}

// Below the configured minimum memory count, RunReflection does nothing.
func TestRunReflectionSkipsBelowMinimum(t *testing.T) {
	ctx := context.Background()
	e := newReflectionTestEngine(5)
	seedMemory(t, e, "a", "u", "first second third fourth fifth", sector.Semantic, 1)

	created, err := e.RunReflection(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 0, created)
}

// A cluster of two near-identical, same-sector memories above the minimum
// produces one synthesized reflective memory and consolidates its sources.
func TestRunReflectionClustersAndConsolidates(t *testing.T) {
	ctx := context.Background()
	e := newReflectionTestEngine(3)

	seedMemory(t, e, "a", "u", "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu", sector.Semantic, 1000)
	seedMemory(t, e, "b", "u", "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda nu", sector.Semantic, 2000)
	seedMemory(t, e, "c", "u", "completely unrelated procedural install guide", sector.Procedural, 3000)

	created, err := e.RunReflection(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 1, created)

	mems, err := e.Store.ListByUser(ctx, "u", 0, 0)
	require.NoError(t, err)
	require.Len(t, mems, 4) // 3 seeded + 1 synthesized reflection

	var reflected *types.Memory
	for _, m := range mems {
		if m.ID != "a" && m.ID != "b" && m.ID != "c" {
			reflected = m
		}
	}
	require.NotNil(t, reflected)

	a, ok, err := e.Store.GetMemory(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, true, a.Meta["consolidated"])
	require.Greater(t, a.Salience, 0.5)

	b, ok, err := e.Store.GetMemory(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, true, b.Meta["consolidated"])

	u, ok, err := e.Store.GetUser(ctx, "u")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, u.ReflectionCount)
}

// RunReflectionAll sums reflections created across every known user.
func TestRunReflectionAllCoversEveryUser(t *testing.T) {
	ctx := context.Background()
	e := newReflectionTestEngine(2)

	seedMemory(t, e, "a1", "u1", "red orange yellow green blue indigo violet pink brown black white gray", sector.Semantic, 1)
	seedMemory(t, e, "a2", "u1", "red orange yellow green blue indigo violet pink brown black white silver", sector.Semantic, 2)
	seedMemory(t, e, "b1", "u2", "sun moon star planet comet asteroid meteor nebula galaxy quasar pulsar nova", sector.Semantic, 1)
	seedMemory(t, e, "b2", "u2", "sun moon star planet comet asteroid meteor nebula galaxy quasar pulsar supernova", sector.Semantic, 2)
	require.NoError(t, e.Store.UpsertUser(ctx, types.User{UserID: "u1"}))
	require.NoError(t, e.Store.UpsertUser(ctx, types.User{UserID: "u2"}))

	total := e.RunReflectionAll(ctx)
	require.Equal(t, 2, total)
}
