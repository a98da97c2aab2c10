// Package store implements C7, the memory store: persistent records for
// memories, waypoint edges, users, and the embed-log audit trail, plus
// segment allocation. The in-memory implementation is the zero-dependency
// default; a pgx-backed implementation in pg.go exercises the ambient
// stack's Postgres idioms for deployments that need durability across
// restarts.
package store

import (
	"context"

	"hsg/internal/hsg/types"
)

// DefaultSegmentSize is S from §3: a segment rolls over once it holds this
// many memories.
const DefaultSegmentSize = 10000

// MemoryStore is the typed persistence contract for C7.
type MemoryStore interface {
	// InsertMemory persists m as given; callers choose m.Segment (see
	// AllocateSegment).
	InsertMemory(ctx context.Context, m *types.Memory) error
	GetMemory(ctx context.Context, id string) (*types.Memory, bool, error)
	UpdateMemory(ctx context.Context, m *types.Memory) error
	// FindBySimHash returns a memory with an identical simhash, if any.
	FindBySimHash(ctx context.Context, simhash string) (*types.Memory, bool, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*types.Memory, error)
	// ListRecentByUser returns up to limit of a user's most recent memories,
	// excluding excludeID, for waypoint-candidate scanning.
	ListRecentByUser(ctx context.Context, userID string, limit int, excludeID string) ([]*types.Memory, error)
	// DeleteMemory removes m and its waypoints; its vectors live in the
	// vector store and are removed by the caller.
	DeleteMemory(ctx context.Context, id string) error
	// DeleteUser removes every memory (and their waypoints) for userID, plus
	// the user row itself; vectors are removed by the caller.
	DeleteUser(ctx context.Context, userID string) error

	InsertLog(ctx context.Context, log types.EmbedLog) error
	UpdateLog(ctx context.Context, id string, status types.EmbedLogStatus, errMsg string) error

	UpsertWaypoint(ctx context.Context, w types.Waypoint) error
	GetWaypointsBySrc(ctx context.Context, srcID string) ([]types.Waypoint, error)
	DeleteWaypointsFor(ctx context.Context, id string) error

	GetUser(ctx context.Context, userID string) (*types.User, bool, error)
	UpsertUser(ctx context.Context, u types.User) error

	// SegmentCount returns how many memories currently occupy segment.
	SegmentCount(ctx context.Context, segment int) (int, error)
	// MaxSegment returns the current global maximum segment id (0 if none).
	MaxSegment(ctx context.Context) (int, error)

	// AllSegments returns every distinct segment id, used by the decay
	// scheduler to iterate per-segment windows.
	AllSegments(ctx context.Context) ([]int, error)
	// MemoriesInSegment returns every memory in segment, used by decay.
	MemoriesInSegment(ctx context.Context, segment int) ([]*types.Memory, error)

	// ListUserIDs returns every distinct user id with at least one memory,
	// used by the user-summary refresh ticker to enumerate its work set.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// AllocateSegment implements the shared segment-rollover rule described in
// §4.7: read the global max segment; if its count is already at capacity,
// roll over to max+1.
func AllocateSegment(ctx context.Context, s MemoryStore, segmentSize int) (int, error) {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	max, err := s.MaxSegment(ctx)
	if err != nil {
		return 0, err
	}
	count, err := s.SegmentCount(ctx, max)
	if err != nil {
		return 0, err
	}
	if count >= segmentSize {
		return max + 1, nil
	}
	return max, nil
}
