package waypoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"hsg/internal/hsg/store"
	"hsg/internal/hsg/types"
)

func TestConstructSelfEdgeWhenNoCandidates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := &types.Memory{ID: "a", UserID: "u", MeanVec: []float32{1, 0, 0}}
	require.NoError(t, s.InsertMemory(ctx, m))
	require.NoError(t, Construct(ctx, s, m, 0, 1000))

	edges, err := s.GetWaypointsBySrc(ctx, "a")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "a", edges[0].DstID)
	require.Equal(t, 1.0, edges[0].Weight)
}

func TestConstructLinksNearestNeighbor(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.InsertMemory(ctx, &types.Memory{ID: "a", UserID: "u", MeanVec: []float32{1, 0, 0}, CreatedAt: 1}))
	require.NoError(t, s.InsertMemory(ctx, &types.Memory{ID: "b", UserID: "u", MeanVec: []float32{0, 1, 0}, CreatedAt: 2}))

	newMem := &types.Memory{ID: "c", UserID: "u", MeanVec: []float32{0.99, 0.01, 0}, CreatedAt: 3}
	require.NoError(t, s.InsertMemory(ctx, newMem))
	require.NoError(t, Construct(ctx, s, newMem, 0, 1000))

	edges, err := s.GetWaypointsBySrc(ctx, "c")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, "a", edges[0].DstID)
}

func TestExpandPrunesLowWeightAndAvoidsCycles(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := int64(1000)
	require.NoError(t, s.UpsertWaypoint(ctx, types.Waypoint{SrcID: "a", DstID: "b", Weight: 1.0, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.UpsertWaypoint(ctx, types.Waypoint{SrcID: "b", DstID: "a", Weight: 1.0, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.UpsertWaypoint(ctx, types.Waypoint{SrcID: "b", DstID: "c", Weight: 0.05, CreatedAt: now, UpdatedAt: now}))

	out, err := Expand(ctx, s, []string{"a"}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "b", out[0].ID)
}

func TestReinforcePropagatesToNeighbors(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := int64(2000)
	require.NoError(t, s.InsertMemory(ctx, &types.Memory{ID: "a", UserID: "u", Salience: 0.9, LastSeenAt: 1000}))
	require.NoError(t, s.InsertMemory(ctx, &types.Memory{ID: "b", UserID: "u", Salience: 0.2, LastSeenAt: 1000}))
	require.NoError(t, s.UpsertWaypoint(ctx, types.Waypoint{SrcID: "a", DstID: "b", Weight: 0.8, CreatedAt: now, UpdatedAt: now}))

	require.NoError(t, Reinforce(ctx, s, "a", 0.9, now))

	b, ok, err := s.GetMemory(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, b.Salience, 0.2)
	require.Equal(t, now, b.LastSeenAt)
}
