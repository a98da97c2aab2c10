package temporal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertFactClosesPriorOpenRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	id1, err := s.InsertFact(ctx, "user-1", "favorite_color", "blue", 1000, 1.0, nil)
	require.NoError(t, err)

	id2, err := s.InsertFact(ctx, "user-1", "favorite_color", "green", 2000, 1.0, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	current, ok, err := s.GetCurrentFact(ctx, "user-1", "favorite_color")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "green", current.Object)
	assert.Equal(t, id2, current.ID)

	facts, err := s.QueryFactsAtTime(ctx, FactFilter{Subject: "user-1", Predicate: "favorite_color"}, 1500, 0)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "blue", facts[0].Object)
	require.NotNil(t, facts[0].ValidTo)
	assert.Equal(t, int64(1999), *facts[0].ValidTo)
}

func TestGetFactsBySubjectExcludesHistoricalByDefault(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.InsertFact(ctx, "user-1", "role", "engineer", 1000, 1.0, nil)
	require.NoError(t, err)
	_, err = s.InsertFact(ctx, "user-1", "role", "manager", 2000, 1.0, nil)
	require.NoError(t, err)

	current, err := s.GetFactsBySubject(ctx, "user-1", 3000, false)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "manager", current[0].Object)

	historical, err := s.GetFactsBySubject(ctx, "user-1", 3000, true)
	require.NoError(t, err)
	assert.Len(t, historical, 2)
}

func TestBatchInsertFactsIsAtomicAndInvalidatesWithinBatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	ids, err := s.BatchInsertFacts(ctx, []BatchFact{
		{Subject: "user-1", Predicate: "status", Object: "active", ValidFrom: 1000, Confidence: 1.0},
		{Subject: "user-1", Predicate: "status", Object: "inactive", ValidFrom: 2000, Confidence: 1.0},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	current, ok, err := s.GetCurrentFact(ctx, "user-1", "status")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "inactive", current.Object)

	historical, err := s.GetFactsBySubject(ctx, "user-1", 3000, true)
	require.NoError(t, err)
	require.Len(t, historical, 2)
}

func TestApplyConfidenceDecayFloorsAtConfidenceFloor(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.InsertFact(ctx, "user-1", "mood", "happy", 0, 1.0, nil)
	require.NoError(t, err)

	touched, err := s.ApplyConfidenceDecay(ctx, 10.0, int64(365)*int64(86400000))
	require.NoError(t, err)
	assert.Equal(t, 1, touched)

	current, ok, err := s.GetCurrentFact(ctx, "user-1", "mood")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, ConfidenceFloor, current.Confidence, 1e-9)
}

func TestFindConflictingFactsReturnsOpenRowsOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.InsertFact(ctx, "user-1", "location", "nyc", 1000, 0.9, nil)
	require.NoError(t, err)
	id2, err := s.InsertFact(ctx, "user-1", "location", "sf", 2000, 0.8, nil)
	require.NoError(t, err)

	conflicts, err := s.FindConflictingFacts(ctx, "user-1", "location", 2500)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, id2, conflicts[0].ID)
}

func TestSearchFactsMatchesSubstringCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, err := s.InsertFact(ctx, "user-alpha", "likes", "golang", 1000, 1.0, nil)
	require.NoError(t, err)

	results, err := s.SearchFacts(ctx, "ALPHA", "subject", 2000)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "user-alpha", results[0].Subject)
}

func TestGetRelatedFactsJoinsThroughEdge(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	factID, err := s.InsertFact(ctx, "project-x", "status", "green", 1000, 1.0, nil)
	require.NoError(t, err)
	relatedID, err := s.InsertFact(ctx, "project-y", "status", "blue", 1000, 1.0, nil)
	require.NoError(t, err)
	_, err = s.InsertEdge(ctx, factID, relatedID, "depends_on", 1000, 0.7, nil)
	require.NoError(t, err)

	related, err := s.GetRelatedFacts(ctx, factID, "", 2000)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, relatedID, related[0].Fact.ID)
	assert.Equal(t, "depends_on", related[0].Relation)
}

func TestGetSubjectTimelineEmitsCreatedAndInvalidated(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.InsertFact(ctx, "user-1", "plan", "free", 1000, 1.0, nil)
	require.NoError(t, err)
	_, err = s.InsertFact(ctx, "user-1", "plan", "pro", 2000, 1.0, nil)
	require.NoError(t, err)

	timeline, err := s.GetSubjectTimeline(ctx, "user-1", "plan")
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	assert.Equal(t, "created", timeline[0].ChangeType)
	assert.Equal(t, "invalidated", timeline[1].ChangeType)
	assert.Equal(t, "created", timeline[2].ChangeType)
}

func TestCompareTimePointsDetectsAddedRemovedAndChanged(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.InsertFact(ctx, "user-1", "role", "engineer", 1000, 1.0, nil)
	require.NoError(t, err)
	_, err = s.InsertFact(ctx, "user-1", "team", "infra", 1000, 1.0, nil)
	require.NoError(t, err)

	_, err = s.InsertFact(ctx, "user-1", "role", "manager", 2000, 1.0, nil)
	require.NoError(t, err)
	_, err = s.InsertFact(ctx, "user-1", "location", "nyc", 2000, 1.0, nil)
	require.NoError(t, err)
	require.NoError(t, s.InvalidateFact(ctx, factIDFor(t, ctx, s, "user-1", "team"), 1999))

	diff, err := s.CompareTimePoints(ctx, "user-1", 1500, 2500)
	require.NoError(t, err)
	assert.Len(t, diff.Added, 1)
	assert.Len(t, diff.Removed, 1)
	assert.Len(t, diff.Changed, 1)
	assert.Equal(t, "manager", diff.Changed[0].After.Object)
}

func factIDFor(t *testing.T, ctx context.Context, s Store, subject, predicate string) string {
	t.Helper()
	f, ok, err := s.GetCurrentFact(ctx, subject, predicate)
	require.NoError(t, err)
	require.True(t, ok)
	return f.ID
}

func TestGetVolatileFactsRequiresMoreThanOneChange(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.InsertFact(ctx, "user-1", "status", "idle", 1000, 1.0, nil)
	require.NoError(t, err)
	_, err = s.InsertFact(ctx, "user-1", "status", "active", 2000, 1.0, nil)
	require.NoError(t, err)
	_, err = s.InsertFact(ctx, "user-1", "status", "idle", 3000, 1.0, nil)
	require.NoError(t, err)

	_, err = s.InsertFact(ctx, "user-1", "onetime", "value", 1000, 1.0, nil)
	require.NoError(t, err)

	volatile, err := s.GetVolatileFacts(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, volatile, 1)
	assert.Equal(t, "status", volatile[0].Predicate)
	assert.Equal(t, 3, volatile[0].ChangeCount)
}

func TestGetChangeFrequencyComputesRatePerDay(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	day := int64(86400000)
	_, err := s.InsertFact(ctx, "user-1", "mood", "calm", 0, 1.0, nil)
	require.NoError(t, err)
	_, err = s.InsertFact(ctx, "user-1", "mood", "excited", day, 1.0, nil)
	require.NoError(t, err)

	freq, err := s.GetChangeFrequency(ctx, "user-1", "mood", 7, 2*day)
	require.NoError(t, err)
	assert.Equal(t, 2, freq.TotalChanges)
	assert.Greater(t, freq.ChangeRatePerDay, 0.0)
}
