// Package temporal implements C11: the bitemporal subject-predicate-object
// fact store. Grounded on the original source's temporal_graph package
// (store.py/query.py/timeline.py), ported from its SQLite-backed
// open/invalidate-on-insert design to a typed Go Store interface with an
// in-memory default and a pgx-backed implementation, mirroring the shape of
// internal/hsg/store's MemoryStore split.
package temporal

import (
	"context"

	"hsg/internal/hsg/types"
)

// RelatedFact pairs a fact reached via a TemporalEdge with the edge's
// relation type and weight, the Go shape of query.py's get_related_facts
// join result.
type RelatedFact struct {
	Fact     types.TemporalFact
	Relation string
	Weight   float64
}

// FactDiff is compare_time_points' added/removed/changed/unchanged split
// between two points in a subject's timeline.
type FactDiff struct {
	Added     []types.TemporalFact
	Removed   []types.TemporalFact
	Changed   []ChangedFact
	Unchanged []types.TemporalFact
}

// ChangedFact is one (subject,predicate) whose object differs between the
// two compared timestamps.
type ChangedFact struct {
	Before types.TemporalFact
	After  types.TemporalFact
}

// ChangeFrequency summarizes how often a (subject,predicate) pair has
// changed within a trailing window, timeline.py's get_change_frequency.
type ChangeFrequency struct {
	Predicate          string
	TotalChanges       int
	AvgDurationMs      float64
	ChangeRatePerDay   float64
}

// VolatileFact is one (subject,predicate) pair ranked by how often it has
// changed, timeline.py's get_volatile_facts.
type VolatileFact struct {
	Subject       string
	Predicate     string
	ChangeCount   int
	AvgConfidence float64
}

// Store is the C11 persistence and query contract. Implementations must
// uphold the bitemporal invariants from §3: at most one open
// (valid_to=null) row per (subject,predicate) outside a batch insert, and
// ValidTo >= ValidFrom whenever ValidTo is set.
type Store interface {
	// InsertFact closes any existing open row for (subject,predicate) whose
	// ValidFrom precedes the new row's, then inserts the new row, returning
	// its id.
	InsertFact(ctx context.Context, subject, predicate, object string, validFrom int64, confidence float64, meta map[string]any) (string, error)
	UpdateFact(ctx context.Context, id string, confidence *float64, meta map[string]any) error
	InvalidateFact(ctx context.Context, id string, validTo int64) error
	DeleteFact(ctx context.Context, id string) error

	InsertEdge(ctx context.Context, sourceID, targetID, relationType string, validFrom int64, weight float64, meta map[string]any) (string, error)
	InvalidateEdge(ctx context.Context, id string, validTo int64) error

	// BatchInsertFacts inserts every fact atomically: all rows (including
	// their own within-batch (S,P) invalidations) commit together or none
	// do, per §4.12/§12.
	BatchInsertFacts(ctx context.Context, facts []BatchFact) ([]string, error)

	// ApplyConfidenceDecay decays every currently-valid fact's confidence
	// toward the 0.1 floor at the given daily rate, returning the count of
	// rows touched.
	ApplyConfidenceDecay(ctx context.Context, rate float64, now int64) (int, error)

	QueryFactsAtTime(ctx context.Context, filter FactFilter, at int64, minConfidence float64) ([]types.TemporalFact, error)
	GetCurrentFact(ctx context.Context, subject, predicate string) (*types.TemporalFact, bool, error)
	QueryFactsInRange(ctx context.Context, filter FactFilter, start, end *int64, minConfidence float64) ([]types.TemporalFact, error)
	FindConflictingFacts(ctx context.Context, subject, predicate string, at int64) ([]types.TemporalFact, error)
	GetFactsBySubject(ctx context.Context, subject string, at int64, includeHistorical bool) ([]types.TemporalFact, error)
	SearchFacts(ctx context.Context, pattern, field string, at int64) ([]types.TemporalFact, error)
	GetRelatedFacts(ctx context.Context, factID, relationType string, at int64) ([]RelatedFact, error)

	GetSubjectTimeline(ctx context.Context, subject, predicate string) ([]types.TimelineEntry, error)
	GetPredicateTimeline(ctx context.Context, predicate string, start, end *int64) ([]types.TimelineEntry, error)
	GetChangesInWindow(ctx context.Context, start, end int64, subject string) ([]types.TimelineEntry, error)
	CompareTimePoints(ctx context.Context, subject string, t1, t2 int64) (FactDiff, error)
	GetChangeFrequency(ctx context.Context, subject, predicate string, windowDays int, now int64) (ChangeFrequency, error)
	GetVolatileFacts(ctx context.Context, subject string, limit int) ([]VolatileFact, error)
}

// BatchFact is one row of a BatchInsertFacts call.
type BatchFact struct {
	Subject    string
	Predicate  string
	Object     string
	ValidFrom  int64
	Confidence float64
	Metadata   map[string]any
}

// FactFilter narrows subject/predicate/object matches shared by several
// query operations; an empty field means "no filter on this column".
type FactFilter struct {
	Subject   string
	Predicate string
	Object    string
}

func (f FactFilter) matches(fact types.TemporalFact) bool {
	if f.Subject != "" && fact.Subject != f.Subject {
		return false
	}
	if f.Predicate != "" && fact.Predicate != f.Predicate {
		return false
	}
	if f.Object != "" && fact.Object != f.Object {
		return false
	}
	return true
}

// DefaultMinConfidence is query.py's min_confidence default.
const DefaultMinConfidence = 0.1

// ConfidenceFloor is the floor apply_confidence_decay never drops below.
const ConfidenceFloor = 0.1

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func isOpenAt(fact types.TemporalFact, ts int64) bool {
	if fact.ValidFrom > ts {
		return false
	}
	return fact.ValidTo == nil || *fact.ValidTo >= ts
}
