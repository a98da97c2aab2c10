// Package waypoint implements C8: the directed weighted memory graph used to
// associate related memories at insert time, expand a retrieval candidate
// set via BFS at query time, and reinforce neighbor salience on a retrieval
// hit; edge weights keep their construction value. Grounded on the teacher's in-memory GraphDB
// (internal/persistence/databases/memory_graph.go) for the adjacency-map
// shape and internal/rag/retrieve's graph-expansion idiom for the
// weighted-BFS structure.
package waypoint

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"hsg/internal/hsg/types"
	"hsg/internal/hsg/veccodec"
)

const (
	// EdgeDecay is the per-hop multiplier applied to a path's weight
	// during expansion (§4.8).
	EdgeDecay = 0.8
	// PruneThreshold is the minimum effective weight an edge must retain
	// to continue expansion.
	PruneThreshold = 0.1
	// Eta is the reinforcement learning rate applied to the hit memory's
	// own salience (§4.10 step 7); dedup hits use the fixed
	// engine.DedupBoost instead.
	Eta = 0.18
	// Gamma is the neighbor-propagation learning rate (§4.8).
	Gamma = 0.2
	// maxScanDefault bounds how many of a user's most-recent memories are
	// considered as waypoint-construction candidates.
	maxScanDefault = 1000
)

// Store is the narrow persistence contract the waypoint package needs from
// C7, to avoid an import cycle with the full store.MemoryStore interface.
type Store interface {
	ListRecentByUser(ctx context.Context, userID string, limit int, excludeID string) ([]*types.Memory, error)
	UpsertWaypoint(ctx context.Context, w types.Waypoint) error
	GetWaypointsBySrc(ctx context.Context, srcID string) ([]types.Waypoint, error)
	GetMemory(ctx context.Context, id string) (*types.Memory, bool, error)
	UpdateMemory(ctx context.Context, m *types.Memory) error
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Construct creates the single directed edge from a newly inserted memory to
// its nearest existing neighbor by cosine similarity of mean vectors, or a
// self-edge of weight 1.0 when no candidate exists.
func Construct(ctx context.Context, s Store, newMemory *types.Memory, maxScan int, now int64) error {
	if maxScan <= 0 {
		maxScan = maxScanDefault
	}
	candidates, err := s.ListRecentByUser(ctx, newMemory.UserID, maxScan, newMemory.ID)
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		return s.UpsertWaypoint(ctx, types.Waypoint{
			SrcID: newMemory.ID, DstID: newMemory.ID, UserID: newMemory.UserID,
			Weight: 1.0, CreatedAt: now, UpdatedAt: now,
		})
	}

	var bestID string
	bestSim := -2.0
	for _, c := range candidates {
		sim := veccodec.Cosine(newMemory.MeanVec, c.MeanVec)
		if sim > bestSim {
			bestSim = sim
			bestID = c.ID
		}
	}
	return s.UpsertWaypoint(ctx, types.Waypoint{
		SrcID: newMemory.ID, DstID: bestID, UserID: newMemory.UserID,
		Weight: clamp01(bestSim), CreatedAt: now, UpdatedAt: now,
	})
}

// Expanded is one item discovered by waypoint expansion.
type Expanded struct {
	ID     string
	Weight float64
	Path   []string
}

// Expand performs a weighted BFS from seedIDs, multiplying the incoming path
// weight by edge_weight*EdgeDecay at every hop, pruning below
// PruneThreshold, and stopping once maxExpansions new items have been
// collected. The visited set (seeded with seedIDs themselves) prevents
// cycles from looping forever.
func Expand(ctx context.Context, s Store, seedIDs []string, maxExpansions int) ([]Expanded, error) {
	if maxExpansions <= 0 || len(seedIDs) == 0 {
		return nil, nil
	}

	type frontierItem struct {
		id     string
		weight float64
		path   []string
	}

	visited := make(map[string]struct{}, len(seedIDs))
	for _, id := range seedIDs {
		visited[id] = struct{}{}
	}

	queue := make([]frontierItem, 0, len(seedIDs))
	for _, id := range seedIDs {
		queue = append(queue, frontierItem{id: id, weight: 1.0, path: []string{id}})
	}

	var out []Expanded
	for len(queue) > 0 && len(out) < maxExpansions {
		cur := queue[0]
		queue = queue[1:]

		edges, err := s.GetWaypointsBySrc(ctx, cur.id)
		if err != nil {
			return out, err
		}
		for _, e := range edges {
			if e.DstID == e.SrcID {
				continue // self-edges carry no expansion information
			}
			if _, seen := visited[e.DstID]; seen {
				continue
			}
			w := cur.weight * e.Weight * EdgeDecay
			if w < PruneThreshold {
				continue
			}
			visited[e.DstID] = struct{}{}
			path := append(append([]string{}, cur.path...), e.DstID)
			out = append(out, Expanded{ID: e.DstID, Weight: w, Path: path})
			if len(out) >= maxExpansions {
				break
			}
			queue = append(queue, frontierItem{id: e.DstID, weight: w, path: path})
		}
	}
	return out, nil
}

func daysBetween(a, b int64) float64 {
	d := float64(a-b) / float64(time.Hour.Milliseconds()*24)
	if d < 0 {
		d = -d
	}
	return d
}

// Reinforce propagates an associative-reinforcement boost from a retrieval
// hit (hitID, its salience, and now) to every direct waypoint neighbor, per
// §4.8's Δ/γ formula, updating each touched neighbor's last_seen_at.
func Reinforce(ctx context.Context, s Store, hitID string, hitSalience float64, now int64) error {
	edges, err := s.GetWaypointsBySrc(ctx, hitID)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.DstID == hitID {
			continue
		}
		neighbor, ok, err := s.GetMemory(ctx, e.DstID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		dt := daysBetween(now, neighbor.LastSeenAt)
		decay := math.Exp(-0.02 * dt)
		delta := Gamma * (hitSalience - neighbor.Salience) * decay
		neighbor.Salience = clamp01(neighbor.Salience + delta)
		neighbor.LastSeenAt = now
		if err := s.UpdateMemory(ctx, neighbor); err != nil {
			return err
		}
	}
	return nil
}

// NewID mints a waypoint id.
func NewID() string { return uuid.NewString() }
