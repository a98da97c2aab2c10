package sector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEmotional(t *testing.T) {
	c := Classify("I feel amazing today!!", "")
	assert.Equal(t, Emotional, c.Primary)
}

func TestClassifyProcedural(t *testing.T) {
	c := Classify("How to install nginx step by step", "")
	assert.Equal(t, Procedural, c.Primary)
}

func TestClassifyEmptyFallsBackToSemantic(t *testing.T) {
	c := Classify("", "")
	assert.Equal(t, Semantic, c.Primary)
	assert.InDelta(t, 0.2, c.Confidence, 1e-9)
}

func TestClassifyMetadataOverride(t *testing.T) {
	c := Classify("anything at all", "procedural")
	assert.Equal(t, Procedural, c.Primary)
	assert.Equal(t, 1.0, c.Confidence)
}

func TestResonanceSymmetric(t *testing.T) {
	for _, a := range All {
		for _, b := range All {
			assert.Equal(t, Resonance(a, b), Resonance(b, a))
		}
	}
}

func TestResonanceDiagonalIsOne(t *testing.T) {
	for _, s := range All {
		assert.Equal(t, 1.0, Resonance(s, s))
	}
}

func TestPenaltySameSectorIsOne(t *testing.T) {
	assert.Equal(t, 1.0, Penalty(Semantic, Semantic))
}

func TestPenaltyDefaultsForUnknownSector(t *testing.T) {
	assert.Equal(t, defaultPenalty, Penalty(Sector("unknown"), Semantic))
}
