package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hsg/internal/hsg/config"
	"hsg/internal/hsg/embedder"
	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/store"
	"hsg/internal/hsg/types"
	"hsg/internal/hsg/vectorstore"
)

func newTestEngine() *Engine {
	return New(store.NewMemory(), vectorstore.NewMemory(), embedder.NewSynthetic(64), config.Config{})
}

// S1: re-adding identical content is a dedup hit, not a new row, and boosts
// the existing memory's salience.
func TestAddDedupHit(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	first, err := e.Add(ctx, "Hello world", "u1", nil, nil)
	require.NoError(t, err)
	require.False(t, first.Deduplicated)

	second, err := e.Add(ctx, "Hello world", "u1", nil, nil)
	require.NoError(t, err)
	require.True(t, second.Deduplicated)
	require.Equal(t, first.ID, second.ID)

	mems, err := e.Store.ListByUser(ctx, "u1", 0, 0)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	require.GreaterOrEqual(t, mems[0].Salience, 0.5)
}

// S2: sector routing classifies emotional vs procedural content, and a
// procedural-leaning query ranks the procedural memory first.
func TestAddSectorRoutingAndSearch(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	emo, err := e.Add(ctx, "I feel amazing today!!", "u", nil, nil)
	require.NoError(t, err)
	require.Equal(t, sector.Emotional, emo.PrimarySector)

	proc, err := e.Add(ctx, "How to install nginx step by step", "u", nil, nil)
	require.NoError(t, err)
	require.Equal(t, sector.Procedural, proc.PrimarySector)

	results, err := e.Search(ctx, "install nginx", 5, types.SearchFilters{UserID: "u"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, proc.ID, results[0].ID)
	require.Greater(t, results[0].Score, 0.0)
	require.Less(t, results[0].Score, 1.0)
}

// Every persisted vector count matches the memory's sector set after add.
func TestAddPersistsOneVectorPerSector(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	res, err := e.Add(ctx, "I feel overwhelmed and confused about this algorithm, but I realize the pattern now.", "u", nil, nil)
	require.NoError(t, err)

	rows, err := e.Vectors.ByID(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, rows, len(res.Sectors))
}

// delete(add(x).id) removes the memory and cascades to its vectors.
func TestDeleteCascadesVectors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	res, err := e.Add(ctx, "a memory to delete", "u", nil, nil)
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, res.ID))

	_, err = e.Get(ctx, res.ID)
	require.Error(t, err)

	rows, err := e.Vectors.ByID(ctx, res.ID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestAddRejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	_, err := e.Add(ctx, "", "u", nil, nil)
	require.Error(t, err)
}

// S4-lite: the second of two related memories gets a waypoint edge to the
// first, and a query that hits them refreshes each hit's last_seen_at.
func TestSearchReinforcesWaypoints(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	a, err := e.Add(ctx, "apollo deadline friday", "u", nil, nil)
	require.NoError(t, err)
	b, err := e.Add(ctx, "apollo engineer hiring", "u", nil, nil)
	require.NoError(t, err)

	edges, err := e.Store.GetWaypointsBySrc(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, a.ID, edges[0].DstID)

	before := time.Now().UnixMilli()
	results, err := e.Search(ctx, "apollo", 2, types.SearchFilters{UserID: "u"})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	ids := make(map[string]bool, len(results))
	for _, r := range results {
		ids[r.ID] = true
		m, ok, err := e.Store.GetMemory(ctx, r.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.GreaterOrEqual(t, m.LastSeenAt, before)
	}
	require.True(t, ids[a.ID] || ids[b.ID])
}
