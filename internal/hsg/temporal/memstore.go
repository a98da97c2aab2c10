package temporal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/types"
)

type memStore struct {
	mu    sync.RWMutex
	facts map[string]types.TemporalFact
	edges map[string]types.TemporalEdge
}

// NewMemory constructs the in-memory Store, the zero-dependency default
// mirroring store.NewMemory for the memory store.
func NewMemory() Store {
	return &memStore{
		facts: make(map[string]types.TemporalFact),
		edges: make(map[string]types.TemporalEdge),
	}
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// closeOpenRows closes every open (subject,predicate) row whose ValidFrom
// precedes validFrom, per store.py's insert_fact invalidation loop. Must be
// called with mu held.
func (s *memStore) closeOpenRows(subject, predicate string, validFrom int64) {
	for id, f := range s.facts {
		if f.Subject != subject || f.Predicate != predicate || f.ValidTo != nil {
			continue
		}
		if f.ValidFrom < validFrom {
			closedAt := validFrom - 1
			f.ValidTo = &closedAt
			s.facts[id] = f
		}
	}
}

func (s *memStore) InsertFact(_ context.Context, subject, predicate, object string, validFrom int64, confidence float64, meta map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeOpenRows(subject, predicate, validFrom)

	id := uuid.NewString()
	s.facts[id] = types.TemporalFact{
		ID: id, Subject: subject, Predicate: predicate, Object: object,
		ValidFrom: validFrom, ValidTo: nil, Confidence: clamp01(confidence),
		LastUpdated: validFrom, Metadata: cloneMeta(meta),
	}
	return id, nil
}

func (s *memStore) UpdateFact(_ context.Context, id string, confidence *float64, meta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok {
		return hsgerr.NotFoundErr("temporal fact " + id + " not found")
	}
	if confidence != nil {
		f.Confidence = clamp01(*confidence)
	}
	if meta != nil {
		f.Metadata = cloneMeta(meta)
	}
	s.facts[id] = f
	return nil
}

func (s *memStore) InvalidateFact(_ context.Context, id string, validTo int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok {
		return hsgerr.NotFoundErr("temporal fact " + id + " not found")
	}
	f.ValidTo = &validTo
	s.facts[id] = f
	return nil
}

func (s *memStore) DeleteFact(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.facts, id)
	return nil
}

func (s *memStore) InsertEdge(_ context.Context, sourceID, targetID, relationType string, validFrom int64, weight float64, meta map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.edges[id] = types.TemporalEdge{
		ID: id, SourceID: sourceID, TargetID: targetID, RelationType: relationType,
		ValidFrom: validFrom, ValidTo: nil, Weight: clamp01(weight), Metadata: cloneMeta(meta),
	}
	return id, nil
}

func (s *memStore) InvalidateEdge(_ context.Context, id string, validTo int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[id]
	if !ok {
		return hsgerr.NotFoundErr("temporal edge " + id + " not found")
	}
	e.ValidTo = &validTo
	s.edges[id] = e
	return nil
}

// BatchInsertFacts applies every fact against a scratch copy of the fact
// table first; only once every row has been prepared does it commit the
// copy back, giving the all-or-nothing semantics of store.py's
// BEGIN/COMMIT/ROLLBACK batch path without a real transaction manager.
func (s *memStore) BatchInsertFacts(_ context.Context, facts []BatchFact) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := make(map[string]types.TemporalFact, len(s.facts))
	for k, v := range s.facts {
		scratch[k] = v
	}

	ids := make([]string, 0, len(facts))
	for _, bf := range facts {
		for id, f := range scratch {
			if f.Subject != bf.Subject || f.Predicate != bf.Predicate || f.ValidTo != nil {
				continue
			}
			if f.ValidFrom < bf.ValidFrom {
				closedAt := bf.ValidFrom - 1
				f.ValidTo = &closedAt
				scratch[id] = f
			}
		}
		id := uuid.NewString()
		scratch[id] = types.TemporalFact{
			ID: id, Subject: bf.Subject, Predicate: bf.Predicate, Object: bf.Object,
			ValidFrom: bf.ValidFrom, ValidTo: nil, Confidence: clamp01(bf.Confidence),
			LastUpdated: bf.ValidFrom, Metadata: cloneMeta(bf.Metadata),
		}
		ids = append(ids, id)
	}

	s.facts = scratch
	return ids, nil
}

func (s *memStore) ApplyConfidenceDecay(_ context.Context, rate float64, now int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := 0
	for id, f := range s.facts {
		if f.ValidTo != nil || f.Confidence <= ConfidenceFloor {
			continue
		}
		deltaDays := float64(now-f.ValidFrom) / dayMillis
		newConf := f.Confidence * (1 - rate*deltaDays)
		if newConf < ConfidenceFloor {
			newConf = ConfidenceFloor
		}
		f.Confidence = newConf
		f.LastUpdated = now
		s.facts[id] = f
		touched++
	}
	return touched, nil
}

const dayMillis = 86400000.0

func (s *memStore) allFacts() []types.TemporalFact {
	out := make([]types.TemporalFact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	return out
}

func (s *memStore) QueryFactsAtTime(_ context.Context, filter FactFilter, at int64, minConfidence float64) ([]types.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TemporalFact
	for _, f := range s.allFacts() {
		if !filter.matches(f) || !isOpenAt(f, at) {
			continue
		}
		if minConfidence > 0 && f.Confidence < minConfidence {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ValidFrom > out[j].ValidFrom
	})
	return out, nil
}

func (s *memStore) GetCurrentFact(_ context.Context, subject, predicate string) (*types.TemporalFact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *types.TemporalFact
	for _, f := range s.facts {
		if f.Subject != subject || f.Predicate != predicate || f.ValidTo != nil {
			continue
		}
		if best == nil || f.ValidFrom > best.ValidFrom {
			cp := f
			best = &cp
		}
	}
	return best, best != nil, nil
}

func (s *memStore) QueryFactsInRange(_ context.Context, filter FactFilter, start, end *int64, minConfidence float64) ([]types.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TemporalFact
	for _, f := range s.allFacts() {
		if !filter.matches(f) {
			continue
		}
		if start != nil && end != nil {
			overlapsOpen := f.ValidFrom <= *end && (f.ValidTo == nil || *f.ValidTo >= *start)
			startsInRange := f.ValidFrom >= *start && f.ValidFrom <= *end
			if !overlapsOpen && !startsInRange {
				continue
			}
		} else if start != nil {
			if f.ValidFrom < *start {
				continue
			}
		} else if end != nil {
			if f.ValidFrom > *end {
				continue
			}
		}
		if minConfidence > 0 && f.Confidence < minConfidence {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom > out[j].ValidFrom })
	return out, nil
}

func (s *memStore) FindConflictingFacts(_ context.Context, subject, predicate string, at int64) ([]types.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TemporalFact
	for _, f := range s.facts {
		if f.Subject != subject || f.Predicate != predicate {
			continue
		}
		if isOpenAt(f, at) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (s *memStore) GetFactsBySubject(_ context.Context, subject string, at int64, includeHistorical bool) ([]types.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TemporalFact
	for _, f := range s.facts {
		if f.Subject != subject {
			continue
		}
		if !includeHistorical && !isOpenAt(f, at) {
			continue
		}
		out = append(out, f)
	}
	if includeHistorical {
		sort.Slice(out, func(i, j int) bool {
			if out[i].Predicate != out[j].Predicate {
				return out[i].Predicate < out[j].Predicate
			}
			return out[i].ValidFrom > out[j].ValidFrom
		})
	} else {
		sort.Slice(out, func(i, j int) bool {
			if out[i].Predicate != out[j].Predicate {
				return out[i].Predicate < out[j].Predicate
			}
			return out[i].Confidence > out[j].Confidence
		})
	}
	return out, nil
}

func (s *memStore) SearchFacts(_ context.Context, pattern, field string, at int64) ([]types.TemporalFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch field {
	case "subject", "predicate", "object":
	default:
		field = "subject"
	}
	needle := strings.ToLower(pattern)
	var out []types.TemporalFact
	for _, f := range s.facts {
		if !isOpenAt(f, at) {
			continue
		}
		var hay string
		switch field {
		case "predicate":
			hay = f.Predicate
		case "object":
			hay = f.Object
		default:
			hay = f.Subject
		}
		if strings.Contains(strings.ToLower(hay), needle) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ValidFrom > out[j].ValidFrom
	})
	const limit = 100
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) GetRelatedFacts(_ context.Context, factID, relationType string, at int64) ([]RelatedFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RelatedFact
	for _, e := range s.edges {
		if e.SourceID != factID {
			continue
		}
		if relationType != "" && e.RelationType != relationType {
			continue
		}
		if !isOpenTemporalEdge(e, at) {
			continue
		}
		fact, ok := s.facts[e.TargetID]
		if !ok || !isOpenAt(fact, at) {
			continue
		}
		out = append(out, RelatedFact{Fact: fact, Relation: e.RelationType, Weight: e.Weight})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Fact.Confidence > out[j].Fact.Confidence
	})
	return out, nil
}

func isOpenTemporalEdge(e types.TemporalEdge, at int64) bool {
	if e.ValidFrom > at {
		return false
	}
	return e.ValidTo == nil || *e.ValidTo >= at
}

func (s *memStore) GetSubjectTimeline(ctx context.Context, subject, predicate string) ([]types.TimelineEntry, error) {
	return s.buildTimeline(func(f types.TemporalFact) bool {
		return f.Subject == subject && (predicate == "" || f.Predicate == predicate)
	})
}

func (s *memStore) GetPredicateTimeline(ctx context.Context, predicate string, start, end *int64) ([]types.TimelineEntry, error) {
	return s.buildTimeline(func(f types.TemporalFact) bool {
		if f.Predicate != predicate {
			return false
		}
		if start != nil && f.ValidFrom < *start {
			return false
		}
		if end != nil && f.ValidFrom > *end {
			return false
		}
		return true
	})
}

func (s *memStore) buildTimeline(keep func(types.TemporalFact) bool) ([]types.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TimelineEntry
	for _, f := range s.facts {
		if !keep(f) {
			continue
		}
		out = append(out, types.TimelineEntry{
			Timestamp: f.ValidFrom, Subject: f.Subject, Predicate: f.Predicate,
			Object: f.Object, Confidence: f.Confidence, ChangeType: "created",
		})
		if f.ValidTo != nil {
			out = append(out, types.TimelineEntry{
				Timestamp: *f.ValidTo, Subject: f.Subject, Predicate: f.Predicate,
				Object: f.Object, Confidence: f.Confidence, ChangeType: "invalidated",
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (s *memStore) GetChangesInWindow(_ context.Context, start, end int64, subject string) ([]types.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TimelineEntry
	for _, f := range s.facts {
		if subject != "" && f.Subject != subject {
			continue
		}
		if f.ValidFrom >= start && f.ValidFrom <= end {
			out = append(out, types.TimelineEntry{
				Timestamp: f.ValidFrom, Subject: f.Subject, Predicate: f.Predicate,
				Object: f.Object, Confidence: f.Confidence, ChangeType: "created",
			})
		}
		if f.ValidTo != nil && *f.ValidTo >= start && *f.ValidTo <= end {
			out = append(out, types.TimelineEntry{
				Timestamp: *f.ValidTo, Subject: f.Subject, Predicate: f.Predicate,
				Object: f.Object, Confidence: f.Confidence, ChangeType: "invalidated",
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (s *memStore) CompareTimePoints(_ context.Context, subject string, t1, t2 int64) (FactDiff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m1 := make(map[string]types.TemporalFact)
	m2 := make(map[string]types.TemporalFact)
	for _, f := range s.facts {
		if f.Subject != subject {
			continue
		}
		if isOpenAt(f, t1) {
			m1[f.Predicate] = f
		}
		if isOpenAt(f, t2) {
			m2[f.Predicate] = f
		}
	}

	var diff FactDiff
	for pred, f2 := range m2 {
		f1, ok := m1[pred]
		if !ok {
			diff.Added = append(diff.Added, f2)
			continue
		}
		if f1.Object != f2.Object || f1.ID != f2.ID {
			diff.Changed = append(diff.Changed, ChangedFact{Before: f1, After: f2})
		} else {
			diff.Unchanged = append(diff.Unchanged, f2)
		}
	}
	for pred, f1 := range m1 {
		if _, ok := m2[pred]; !ok {
			diff.Removed = append(diff.Removed, f1)
		}
	}
	return diff, nil
}

func (s *memStore) GetChangeFrequency(_ context.Context, subject, predicate string, windowDays int, now int64) (ChangeFrequency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := now - int64(float64(windowDays)*dayMillis)

	var totalChanges int
	var totalDur float64
	var validCount int
	for _, f := range s.facts {
		if f.Subject != subject || f.Predicate != predicate || f.ValidFrom < start {
			continue
		}
		totalChanges++
		if f.ValidTo != nil {
			totalDur += float64(*f.ValidTo - f.ValidFrom)
			validCount++
		}
	}
	var avgDur float64
	if validCount > 0 {
		avgDur = totalDur / float64(validCount)
	}
	var rate float64
	if windowDays > 0 {
		rate = float64(totalChanges) / float64(windowDays)
	}
	return ChangeFrequency{Predicate: predicate, TotalChanges: totalChanges, AvgDurationMs: avgDur, ChangeRatePerDay: rate}, nil
}

func (s *memStore) GetVolatileFacts(_ context.Context, subject string, limit int) ([]VolatileFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type agg struct {
		count int
		confSum float64
	}
	groups := make(map[[2]string]*agg)
	for _, f := range s.facts {
		if subject != "" && f.Subject != subject {
			continue
		}
		key := [2]string{f.Subject, f.Predicate}
		a, ok := groups[key]
		if !ok {
			a = &agg{}
			groups[key] = a
		}
		a.count++
		a.confSum += f.Confidence
	}
	out := make([]VolatileFact, 0, len(groups))
	for key, a := range groups {
		if a.count <= 1 {
			continue
		}
		out = append(out, VolatileFact{
			Subject: key[0], Predicate: key[1],
			ChangeCount: a.count, AvgConfidence: a.confSum / float64(a.count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChangeCount != out[j].ChangeCount {
			return out[i].ChangeCount > out[j].ChangeCount
		}
		return out[i].AvgConfidence < out[j].AvgConfidence
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
