package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hsg/internal/hsg/embedder"
	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/store"
	"hsg/internal/hsg/types"
	"hsg/internal/hsg/vectorstore"
	"hsg/internal/hsg/waypoint"
)

const testDim = 128

// harness wires a real in-memory store/vectorstore/waypoint graph around
// the synthetic embedder, mirroring how cmd/hsgd assembles the pipeline.
type harness struct {
	t       *testing.T
	ctx     context.Context
	mstore  store.MemoryStore
	vectors vectorstore.VectorStore
	emb     embedder.Embedder
	engine  *Engine
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		mstore:  store.NewMemory(),
		vectors: vectorstore.NewMemory(),
		emb:     embedder.NewSynthetic(testDim),
	}
	h.engine = New(h.mstore, h.vectors, h.mstore, h.emb)
	return h
}

// insert creates a memory for userID, embeds content across every sector,
// and constructs its waypoint edge, the same sequence memory.add performs.
func (h *harness) insert(id, userID, content string, sec sector.Sector, nowMs int64) *types.Memory {
	mem := &types.Memory{
		ID: id, UserID: userID, Content: content, PrimarySector: sec,
		Sectors: []sector.Sector{sec}, Salience: 0.6, CreatedAt: nowMs, LastSeenAt: nowMs,
	}
	for _, s := range sector.All {
		vec, err := h.emb.EmbedText(h.ctx, content, s)
		require.NoError(h.t, err)
		require.NoError(h.t, h.vectors.Store(h.ctx, id, s, vec, len(vec), userID))
		if s == sec {
			mem.MeanVec = vec
			mem.MeanDim = len(vec)
		}
	}
	require.NoError(h.t, h.mstore.InsertMemory(h.ctx, mem))
	require.NoError(h.t, waypoint.Construct(h.ctx, h.mstore, mem, 0, nowMs))
	return mem
}

func TestSearchReturnsBestMatchingMemoryFirst(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UnixMilli()
	h.insert("m1", "u1", "install nginx on ubuntu server step by step", sector.Procedural, now)
	h.insert("m2", "u1", "feeling great about the product launch today", sector.Emotional, now)

	results, err := h.engine.Search(h.ctx, "how to install nginx step by step", 5, types.SearchFilters{UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m1", results[0].ID)
}

func TestSearchRespectsUserIDFilter(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UnixMilli()
	h.insert("m1", "u1", "install nginx on ubuntu server", sector.Procedural, now)
	h.insert("m2", "u2", "install nginx on ubuntu server", sector.Procedural, now)

	results, err := h.engine.Search(h.ctx, "install nginx", 5, types.SearchFilters{UserID: "u1"})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "m2", r.ID)
	}
}

func TestSearchRespectsMinSalience(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UnixMilli()
	mem := h.insert("m1", "u1", "install nginx on ubuntu server", sector.Procedural, now)
	mem.Salience = 0.05
	require.NoError(t, h.mstore.UpdateMemory(h.ctx, mem))

	results, err := h.engine.Search(h.ctx, "install nginx", 5, types.SearchFilters{UserID: "u1", MinSalience: 0.5})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "m1", r.ID)
	}
}

func TestSearchDebugAttachesBreakdown(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UnixMilli()
	h.insert("m1", "u1", "install nginx on ubuntu server", sector.Procedural, now)

	results, err := h.engine.Search(h.ctx, "install nginx", 5, types.SearchFilters{UserID: "u1", Debug: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.NotNil(t, results[0].Debug)
	assert.Contains(t, results[0].Debug, "sim_adj")
}

func TestSearchWithoutDebugOmitsBreakdown(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UnixMilli()
	h.insert("m1", "u1", "install nginx on ubuntu server", sector.Procedural, now)

	results, err := h.engine.Search(h.ctx, "install nginx", 5, types.SearchFilters{UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Nil(t, results[0].Debug)
}

func TestSearchReinforcesHitSalience(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UnixMilli()
	mem := h.insert("m1", "u1", "install nginx on ubuntu server", sector.Procedural, now)
	before := mem.Salience

	_, err := h.engine.Search(h.ctx, "install nginx", 5, types.SearchFilters{UserID: "u1"})
	require.NoError(t, err)

	after, ok, err := h.mstore.GetMemory(h.ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, after.Salience, before)
}

func TestSearchTruncatesToK(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		h.insert(string(rune('a'+i)), "u1", "install nginx on ubuntu server variant", sector.Procedural, now)
	}
	results, err := h.engine.Search(h.ctx, "install nginx", 2, types.SearchFilters{UserID: "u1"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestAdaptiveExpansionWidthBoundedByTwoK(t *testing.T) {
	assert.Equal(t, 10, adaptiveExpansionWidth(5, 0.0))
	assert.Equal(t, 5, adaptiveExpansionWidth(5, 1.0))
}

func TestKeywordOverlapWeightsBigramsDouble(t *testing.T) {
	score := KeywordOverlap("install nginx server", "install nginx server now", 3)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	// "alpha beta" yields seven weight-1 features plus the weight-2 bigram
	// alpha_beta (total 9); "alpha" matches four weight-1 features.
	assert.InDelta(t, 4.0/9.0, KeywordOverlap("alpha beta", "alpha", 3), 1e-9)
}

func TestBM25ScoreRewardsTermFrequency(t *testing.T) {
	dense := BM25Score("install nginx", "install install install nginx server setup", DefaultBM25Params)
	sparse := BM25Score("install nginx", "a completely unrelated sentence about oceans", DefaultBM25Params)
	assert.Greater(t, dense, sparse)
}

func TestTagMatchScoreExactBeatsSubstring(t *testing.T) {
	qTokens := map[string]struct{}{"nginx": {}}
	exact := tagMatchScore([]string{"nginx"}, qTokens)
	substr := tagMatchScore([]string{"nginxconfig"}, qTokens)
	assert.Greater(t, exact, substr)
}
