// Package veccodec packs and unpacks float32 vectors to their
// little-endian byte representation and implements the cosine similarity,
// mean-pooling, and bucket-compression primitives shared across the
// embedder, the waypoint graph, and the decay engine.
package veccodec

import (
	"encoding/binary"
	"math"
)

// Pack serializes v as little-endian float32 bytes.
func Pack(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// Unpack inverts Pack. The dimension is inferred from len(buf)/4.
func Unpack(buf []byte) []float32 {
	dim := len(buf) / 4
	v := make([]float32, dim)
	for i := 0; i < dim; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// Dot returns the dot product of a and b, truncating to the shorter length.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// Normalize L2-normalizes v in place. A zero vector is left unchanged.
func Normalize(v []float32) {
	n := Norm(v)
	if n == 0 {
		return
	}
	inv := float32(1.0 / n)
	for i := range v {
		v[i] *= inv
	}
}

// Mean returns the element-wise mean of vectors, truncating to the shortest
// length present. An empty input returns nil.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) < dim {
			dim = len(v)
		}
	}
	out := make([]float32, dim)
	for _, v := range vectors {
		for i := 0; i < dim; i++ {
			out[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clampFloat(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Compress bucket-averages v down toward dim = clamp(floor(len(v)*factor),
// minDim, min(len(v), maxDim)), L2-normalizing the result. If the computed
// dimension is not strictly smaller than len(v), a copy of v is returned
// unchanged.
func Compress(v []float32, factor float64, minDim, maxDim int) []float32 {
	factor = clampFloat(factor, 0, 1)
	src := v
	if len(src) == 0 {
		src = []float32{1.0}
	}
	targetDim := clampInt(int(math.Floor(float64(len(src))*factor)), minDim, minInt(len(src), maxDim))
	dim := clampInt(len(src), minDim, targetDim)
	if dim >= len(src) {
		out := make([]float32, len(src))
		copy(out, src)
		return out
	}
	bucket := int(math.Ceil(float64(len(src)) / float64(dim)))
	pooled := make([]float32, 0, dim)
	for i := 0; i < len(src); i += bucket {
		end := i + bucket
		if end > len(src) {
			end = len(src)
		}
		pooled = append(pooled, mean(src[i:end]))
	}
	Normalize(pooled)
	return pooled
}

// BucketPool rigidly buckets v into targetDim buckets with boundaries
// i*len(v)/targetDim .. (i+1)*len(v)/targetDim, averaging each and
// L2-normalizing the result.
func BucketPool(v []float32, targetDim int) []float32 {
	if targetDim <= 0 || len(v) == 0 {
		return nil
	}
	if targetDim >= len(v) {
		out := make([]float32, len(v))
		copy(out, v)
		Normalize(out)
		return out
	}
	out := make([]float32, targetDim)
	n := len(v)
	for i := 0; i < targetDim; i++ {
		start := i * n / targetDim
		end := (i + 1) * n / targetDim
		if end <= start {
			end = start + 1
		}
		if end > n {
			end = n
		}
		out[i] = mean(v[start:end])
	}
	Normalize(out)
	return out
}

func mean(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	var sum float32
	for _, x := range v {
		sum += x
	}
	return sum / float32(len(v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
