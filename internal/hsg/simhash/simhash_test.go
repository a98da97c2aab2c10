package simhash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	a := Compute("Hello world")
	b := Compute("Hello world")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestHammingIdentical(t *testing.T) {
	fp := Compute("the quick brown fox")
	assert.Equal(t, 0, Hamming(fp, fp))
}

func TestHammingDifferentText(t *testing.T) {
	a := Compute("apollo deadline friday")
	b := Compute("completely unrelated sentence about oceans")
	d := Hamming(a, b)
	require.GreaterOrEqual(t, d, 0)
}

func TestBucketMirroring(t *testing.T) {
	// bucket i and i+32 must always carry the same bit since the
	// accumulator is only 32 bits wide.
	fp := Compute("a fairly distinctive sentence for bucket testing purposes")
	var v uint64
	_, err := fmt.Sscanf(fp, "%016x", &v)
	require.NoError(t, err)
	for i := 0; i < 32; i++ {
		bitLow := (v >> uint(i)) & 1
		bitHigh := (v >> uint(i+32)) & 1
		assert.Equal(t, bitLow, bitHigh, "bucket %d should mirror bucket %d", i, i+32)
	}
}
