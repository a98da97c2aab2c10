package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"hsg/internal/hsg/sector"
)

func TestMemoryStoreUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	vs := NewMemory()

	require.NoError(t, vs.Store(ctx, "a", sector.Semantic, []float32{1, 0, 0}, 3, "u1"))
	require.NoError(t, vs.Store(ctx, "b", sector.Semantic, []float32{0, 1, 0}, 3, "u1"))
	require.NoError(t, vs.Store(ctx, "c", sector.Semantic, []float32{0.9, 0.1, 0}, 3, "u2"))

	results, err := vs.Search(ctx, []float32{1, 0, 0}, sector.Semantic, 2, SearchOpts{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].ID)

	rows, err := vs.ByID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, vs.Delete(ctx, "a"))
	rows, err = vs.ByID(ctx, "a")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestMemoryStoreUpsertReplacesVector(t *testing.T) {
	ctx := context.Background()
	vs := NewMemory()
	require.NoError(t, vs.Store(ctx, "a", sector.Semantic, []float32{1, 0}, 2, "u1"))
	require.NoError(t, vs.Store(ctx, "a", sector.Semantic, []float32{0, 1}, 2, "u1"))
	row, ok, err := vs.Get(ctx, "a", sector.Semantic)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{0, 1}, row.Vector)
}
