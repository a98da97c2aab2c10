package decay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/types"
)

func TestAssignTierHot(t *testing.T) {
	now := int64(1_000_000_000)
	m := &types.Memory{LastSeenAt: now, Salience: 0.9, FeedbackScore: 0}
	tier, lambda := AssignTier(m, now)
	assert.Equal(t, TierHot, tier)
	assert.Equal(t, lambdaHot, lambda)
}

func TestAssignTierCold(t *testing.T) {
	now := int64(40) * dayMillisInt
	m := &types.Memory{LastSeenAt: 0, Salience: 0.1, FeedbackScore: 0}
	tier, lambda := AssignTier(m, now)
	assert.Equal(t, TierCold, tier)
	assert.Equal(t, lambdaCold, lambda)
}

func TestAssignTierWarmDefault(t *testing.T) {
	now := int64(40) * dayMillisInt
	m := &types.Memory{LastSeenAt: 0, Salience: 0.6, FeedbackScore: 0}
	tier, lambda := AssignTier(m, now)
	assert.Equal(t, TierWarm, tier)
	assert.Equal(t, lambdaWarm, lambda)
}

const dayMillisInt = 86400000

func TestApplySalienceStaysInRange(t *testing.T) {
	now := int64(90) * dayMillisInt
	m := &types.Memory{LastSeenAt: 0, Salience: 0.8, FeedbackScore: 2, MeanVec: make([]float32, 128)}
	res := Apply(m, now, ColdThresholdDefault)
	assert.GreaterOrEqual(t, res.NewSalience, 0.0)
	assert.LessOrEqual(t, res.NewSalience, 1.0)
	assert.GreaterOrEqual(t, m.Salience, 0.0)
	assert.LessOrEqual(t, m.Salience, 1.0)
}

func TestApplyCompressesWhenFactorLow(t *testing.T) {
	now := int64(200) * dayMillisInt
	m := &types.Memory{LastSeenAt: 0, Salience: 0.5, MeanVec: make([]float32, 128)}
	for i := range m.MeanVec {
		m.MeanVec[i] = 1
	}
	res := Apply(m, now, ColdThresholdDefault)
	require.Less(t, res.Factor, 0.7)
	assert.True(t, res.Compressed)
	assert.Less(t, len(m.CompressedVec), len(m.MeanVec))
}

func TestApplyFingerprintsWhenFactorVeryLow(t *testing.T) {
	now := int64(2000) * dayMillisInt
	m := &types.Memory{ID: "mem-1", LastSeenAt: 0, Salience: 0.1, Content: "install nginx step by step guide", MeanVec: make([]float32, 128)}
	res := Apply(m, now, ColdThresholdDefault)
	assert.True(t, res.Fingerprinted)
	assert.Len(t, m.CompressedVec, fingerprintDim)
	assert.Equal(t, fingerprintDim, m.MeanDim)
	assert.NotEmpty(t, m.Summary)
}

func TestRegenerateRestoresDimAndBoostsSalience(t *testing.T) {
	m := &types.Memory{Salience: 0.2, MeanDim: 32}
	fresh := make([]float32, 768)
	Regenerate(m, fresh, 12345)
	assert.Equal(t, 768, m.MeanDim)
	assert.Nil(t, m.CompressedVec)
	assert.InDelta(t, 0.7, m.Salience, 0.001)
	assert.Equal(t, int64(12345), m.LastSeenAt)
}

func TestNeedsRegeneration(t *testing.T) {
	assert.True(t, NeedsRegeneration(&types.Memory{MeanDim: 32}))
	assert.True(t, NeedsRegeneration(&types.Memory{MeanDim: 64}))
	assert.False(t, NeedsRegeneration(&types.Memory{MeanDim: 128}))
	assert.False(t, NeedsRegeneration(&types.Memory{MeanDim: 0}))
}

func TestTopKeywordsOrdersByFrequency(t *testing.T) {
	kws := TopKeywords("install nginx install nginx install configure", 2)
	assert.Contains(t, kws, "install")
}

func TestEssenceShortTextUnchanged(t *testing.T) {
	text := "short text."
	assert.Equal(t, text, Essence(text, 100))
}

func TestEssenceTruncatesLongText(t *testing.T) {
	text := "Deploying the service requires nginx configuration. The team met yesterday to discuss rollout. Nginx configuration is critical for the deploy. We should also monitor logs after deploy."
	out := Essence(text, 80)
	assert.LessOrEqual(t, len(out), 80)
	assert.NotEmpty(t, out)
}

func TestSectorLambdaFallsBackForUnknownSector(t *testing.T) {
	assert.Equal(t, lambdaWarm, SectorLambda(sector.Sector("bogus")))
	assert.Greater(t, SectorLambda(sector.Semantic), 0.0)
}
