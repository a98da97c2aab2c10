package usersummary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/types"
)

type fakeStore struct {
	mems  map[string][]*types.Memory
	users map[string]*types.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{mems: make(map[string][]*types.Memory), users: make(map[string]*types.User)}
}

func (f *fakeStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]*types.Memory, error) {
	all := f.mems[userID]
	if offset >= len(all) {
		return nil, nil
	}
	out := all[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListUserIDs(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(f.mems))
	for uid := range f.mems {
		out = append(out, uid)
	}
	return out, nil
}

func (f *fakeStore) GetUser(_ context.Context, userID string) (*types.User, bool, error) {
	u, ok := f.users[userID]
	return u, ok, nil
}

func (f *fakeStore) UpsertUser(_ context.Context, u types.User) error {
	cp := u
	f.users[u.UserID] = &cp
	return nil
}

func TestGenerateSummaryEmptyIsPlaceholder(t *testing.T) {
	assert.Contains(t, GenerateSummary(nil, 1000), "initializing")
}

func TestGenerateSummaryFillsTemplateFromMetadata(t *testing.T) {
	mems := []*types.Memory{
		{ID: "m1", CreatedAt: 2000, Meta: map[string]any{"ide_project_name": "hsg", "language": "go", "ide_file_path": "internal/hsg/decay.go", "ide_event_type": "save"}},
		{ID: "m2", CreatedAt: 1000, Meta: map[string]any{"ide_project_name": "hsg", "language": "python"}},
	}
	summary := GenerateSummary(mems, 3000)
	assert.Contains(t, summary, "hsg")
	assert.Contains(t, summary, "go, python")
	assert.Contains(t, summary, "decay.go")
	assert.Contains(t, summary, "2 memories, 1 saves")
}

func TestRefreshUpsertsAndPreservesReflectionCount(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.users["u1"] = &types.User{UserID: "u1", ReflectionCount: 3, CreatedAt: 500}
	s.mems["u1"] = []*types.Memory{{ID: "m1", CreatedAt: 1000}}

	Refresh(ctx, s, "u1", 5000)

	u, ok, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, u.ReflectionCount)
	assert.Equal(t, int64(500), u.CreatedAt)
	assert.Equal(t, int64(5000), u.UpdatedAt)
	assert.Contains(t, u.Summary, "1 memories")
}

func TestRefreshAllTouchesEveryKnownUser(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	s.mems["u1"] = []*types.Memory{{ID: "m1", CreatedAt: 1000}}
	s.mems["u2"] = []*types.Memory{{ID: "m2", CreatedAt: 1000}}

	n := RefreshAll(ctx, s, 2000)
	assert.Equal(t, 2, n)
	_, ok1, _ := s.GetUser(ctx, "u1")
	_, ok2, _ := s.GetUser(ctx, "u2")
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestIncrementReflectionCountStartsAtOneForNewUser(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()
	require.NoError(t, IncrementReflectionCount(ctx, s, "u1", 1000))
	u, ok, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, u.ReflectionCount)
}

func TestClusterMemoriesGroupsSimilarSameSector(t *testing.T) {
	mems := []*types.Memory{
		{ID: "a", PrimarySector: sector.Procedural, Content: "install nginx on ubuntu server"},
		{ID: "b", PrimarySector: sector.Procedural, Content: "install nginx on ubuntu server now"},
		{ID: "c", PrimarySector: sector.Emotional, Content: "feeling great today about the launch"},
	}
	clusters := ClusterMemories(mems)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 2)
}

func TestClusterMemoriesSkipsReflectiveAndConsolidated(t *testing.T) {
	mems := []*types.Memory{
		{ID: "a", PrimarySector: sector.Reflective, Content: "realized a pattern in my work today"},
		{ID: "b", PrimarySector: sector.Procedural, Content: "deploy the service", Meta: map[string]any{"consolidated": true}},
		{ID: "c", PrimarySector: sector.Procedural, Content: "deploy the service"},
	}
	clusters := ClusterMemories(mems)
	assert.Empty(t, clusters)
}

func TestClusterSalienceBoundedAtOne(t *testing.T) {
	members := make([]*types.Memory, 20)
	for i := range members {
		members[i] = &types.Memory{ID: string(rune('a' + i)), CreatedAt: 1000}
	}
	c := Cluster{Members: members}
	sal := ClusterSalience(c, 1000)
	assert.LessOrEqual(t, sal, 1.0)
	assert.GreaterOrEqual(t, sal, 0.0)
}

func TestSummarizeJoinsMemberContent(t *testing.T) {
	c := Cluster{Members: []*types.Memory{
		{PrimarySector: sector.Procedural, Content: "install nginx"},
		{PrimarySector: sector.Procedural, Content: "install apache"},
	}}
	out := Summarize(c)
	assert.Contains(t, out, "2 procedural pattern")
	assert.Contains(t, out, "install nginx")
}

func TestSourceIDsSorted(t *testing.T) {
	c := Cluster{Members: []*types.Memory{{ID: "z"}, {ID: "a"}}}
	assert.Equal(t, []string{"a", "z"}, SourceIDs(c))
}
