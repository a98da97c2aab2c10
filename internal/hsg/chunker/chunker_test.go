package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkShortTextSingleChunk(t *testing.T) {
	text := "hello world"
	chunks := Chunk(text, DefaultTargetTokens, DefaultOverlapRatio)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkEmptyText(t *testing.T) {
	chunks := Chunk("", DefaultTargetTokens, DefaultOverlapRatio)
	assert.Empty(t, chunks)
}

func TestChunkLongTextProducesMultiple(t *testing.T) {
	sentence := "This is a reasonably long sentence used to pad out content. "
	text := strings.Repeat(sentence, 200)
	chunks := Chunk(text, 100, 0.1)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.NotEmpty(t, c)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
