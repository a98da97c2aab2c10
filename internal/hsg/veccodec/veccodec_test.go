package veccodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	got := Unpack(Pack(v))
	require.Len(t, got, len(v))
	for i := range v {
		assert.InDelta(t, v[i], got[i], 1e-6)
	}
}

func TestCosineZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestCosineIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
}

func TestCompressNoOpWhenDimNotSmaller(t *testing.T) {
	v := make([]float32, 64)
	for i := range v {
		v[i] = float32(i)
	}
	out := Compress(v, 1.0, 64, 1536)
	require.Len(t, out, len(v))
}

func TestCompressIdempotentAtFullFactor(t *testing.T) {
	v := make([]float32, 256)
	for i := range v {
		v[i] = float32(i%7) - 3
	}
	once := Compress(v, 0.5, 64, 1536)
	twice := Compress(once, 1.0, 64, 1536)
	require.Len(t, twice, len(once))
	for i := range once {
		assert.InDelta(t, once[i], twice[i], 1e-6)
	}
}

func TestBucketPoolNormalizes(t *testing.T) {
	v := make([]float32, 100)
	for i := range v {
		v[i] = float32(i + 1)
	}
	out := BucketPool(v, 10)
	require.Len(t, out, 10)
	assert.InDelta(t, 1.0, Norm(out), 1e-6)
}
