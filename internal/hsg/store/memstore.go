package store

import (
	"context"
	"sort"
	"sync"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/types"
)

type memStore struct {
	mu        sync.RWMutex
	memories  map[string]*types.Memory
	waypoints map[string]types.Waypoint // keyed by waypoint ID
	users     map[string]*types.User
	logs      map[string]types.EmbedLog
}

// NewMemory constructs the in-memory MemoryStore, suitable for tests and
// for the synthetic-embedder-only deployment mode.
func NewMemory() MemoryStore {
	return &memStore{
		memories:  make(map[string]*types.Memory),
		waypoints: make(map[string]types.Waypoint),
		users:     make(map[string]*types.User),
		logs:      make(map[string]types.EmbedLog),
	}
}

func (s *memStore) InsertMemory(_ context.Context, m *types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.memories[m.ID] = &cp
	return nil
}

func (s *memStore) GetMemory(_ context.Context, id string) (*types.Memory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, false, nil
	}
	cp := *m
	return &cp, true, nil
}

func (s *memStore) UpdateMemory(_ context.Context, m *types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[m.ID]; !ok {
		return hsgerr.NotFoundErr("memory " + m.ID + " not found")
	}
	cp := *m
	s.memories[m.ID] = &cp
	return nil
}

func (s *memStore) FindBySimHash(_ context.Context, simhash string) (*types.Memory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *types.Memory
	for _, m := range s.memories {
		if m.SimHash == simhash {
			if best == nil || m.CreatedAt < best.CreatedAt {
				best = m
			}
		}
	}
	if best == nil {
		return nil, false, nil
	}
	cp := *best
	return &cp, true, nil
}

func (s *memStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Memory
	for _, m := range s.memories {
		if m.UserID == userID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ListRecentByUser(_ context.Context, userID string, limit int, excludeID string) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Memory
	for _, m := range s.memories {
		if m.UserID == userID && m.ID != excludeID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) DeleteMemory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, id)
	for k, w := range s.waypoints {
		if w.SrcID == id || w.DstID == id {
			delete(s.waypoints, k)
		}
	}
	return nil
}

func (s *memStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.memories {
		if m.UserID == userID {
			delete(s.memories, id)
		}
	}
	for k, w := range s.waypoints {
		if w.UserID == userID {
			delete(s.waypoints, k)
		}
	}
	delete(s.users, userID)
	return nil
}

func (s *memStore) InsertLog(_ context.Context, log types.EmbedLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[log.ID] = log
	return nil
}

func (s *memStore) UpdateLog(_ context.Context, id string, status types.EmbedLogStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return hsgerr.NotFoundErr("embed log " + id + " not found")
	}
	l.Status = status
	l.Err = errMsg
	s.logs[id] = l
	return nil
}

func (s *memStore) UpsertWaypoint(_ context.Context, w types.Waypoint) error {
	if w.Weight < 0 {
		w.Weight = 0
	}
	if w.Weight > 1 {
		w.Weight = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		for id, existing := range s.waypoints {
			if existing.SrcID == w.SrcID && existing.DstID == w.DstID {
				w.ID = id
				break
			}
		}
	}
	if w.ID == "" {
		w.ID = w.SrcID + "->" + w.DstID
	}
	s.waypoints[w.ID] = w
	return nil
}

func (s *memStore) GetWaypointsBySrc(_ context.Context, srcID string) ([]types.Waypoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Waypoint
	for _, w := range s.waypoints {
		if w.SrcID == srcID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DstID < out[j].DstID })
	return out, nil
}

func (s *memStore) DeleteWaypointsFor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, w := range s.waypoints {
		if w.SrcID == id || w.DstID == id {
			delete(s.waypoints, k)
		}
	}
	return nil
}

func (s *memStore) GetUser(_ context.Context, userID string) (*types.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, false, nil
	}
	cp := *u
	return &cp, true, nil
}

func (s *memStore) UpsertUser(_ context.Context, u types.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.UserID] = &cp
	return nil
}

func (s *memStore) SegmentCount(_ context.Context, segment int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.memories {
		if m.Segment == segment {
			n++
		}
	}
	return n, nil
}

func (s *memStore) MaxSegment(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, m := range s.memories {
		if m.Segment > max {
			max = m.Segment
		}
	}
	return max, nil
}

func (s *memStore) AllSegments(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]struct{})
	for _, m := range s.memories {
		seen[m.Segment] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for seg := range seen {
		out = append(out, seg)
	}
	sort.Ints(out)
	return out, nil
}

func (s *memStore) MemoriesInSegment(_ context.Context, segment int) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Memory
	for _, m := range s.memories {
		if m.Segment == segment {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, m := range s.memories {
		if m.UserID != "" {
			seen[m.UserID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for uid := range seen {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out, nil
}
