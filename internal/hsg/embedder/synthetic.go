package embedder

import (
	"context"
	"hash/fnv"
	"math"

	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/textcanon"
)

// syntheticEmbedder is the deterministic, network-free default embedder.
// Adapted from this codebase's byte-3-gram FNV hashing embedder, generalized
// to the sector-tagged, multi-feature hashing scheme described for the
// memory pipeline's synthetic backend.
type syntheticEmbedder struct {
	dim int
}

// NewSynthetic constructs the deterministic synthetic embedder with the
// given dimension (default 768 when dim <= 0).
func NewSynthetic(dim int) Embedder {
	if dim <= 0 {
		dim = 768
	}
	return &syntheticEmbedder{dim: dim}
}

func (s *syntheticEmbedder) Name() string      { return "synthetic" }
func (s *syntheticEmbedder) Dimension() int     { return s.dim }
func (s *syntheticEmbedder) Ping(context.Context) error { return nil }

func (s *syntheticEmbedder) EmbedText(_ context.Context, text string, sec sector.Sector) ([]float32, error) {
	return s.embedOne(text, sec), nil
}

func (s *syntheticEmbedder) EmbedBatch(_ context.Context, texts []string, sec sector.Sector) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.embedOne(t, sec)
	}
	return out, nil
}

// fnv1a32 hashes key with FNV-1a.
func fnv1a32(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

// murmurish32 is a lightweight multiplicative Murmur-style finalizer hash,
// distinct from the FNV-1a bucket so each feature lands on two
// (largely-independent) indices.
func murmurish32(key string) uint32 {
	var h uint32 = 0x9747b28c
	for _, b := range []byte(key) {
		h ^= uint32(b)
		h *= 0x5bd1e995
		h ^= h >> 15
	}
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

func (s *syntheticEmbedder) accumulate(v []float32, key string, weight float64) {
	dim := uint32(len(v))
	if dim == 0 {
		return
	}
	i1 := fnv1a32(key) % dim
	i2 := murmurish32(key) % dim
	sign1 := signOf(fnv1a32(key + "|sign"))
	sign2 := signOf(murmurish32(key + "|sign"))
	v[i1] += float32(weight * sign1)
	v[i2] += float32(weight * sign2)
}

func signOf(h uint32) float64 {
	if h%2 == 0 {
		return 1.0
	}
	return -1.0
}

func (s *syntheticEmbedder) embedOne(text string, sec sector.Sector) []float32 {
	v := make([]float32, s.dim)
	tokens := textcanon.CanonicalTokens(text)
	if len(tokens) == 0 {
		return uniformUnit(s.dim)
	}

	// Extend the canonical token list with each token's synonym family
	// members (all canonicalizing back to the same form), so a token's
	// effective term frequency reflects how many synonyms it stands for.
	extended := make([]string, 0, len(tokens)*2)
	for _, tok := range tokens {
		extended = append(extended, tok)
		n := textcanon.FamilySize(tok)
		for i := 0; i < n; i++ {
			extended = append(extended, tok)
		}
	}
	el := len(extended)
	if el == 0 {
		return uniformUnit(s.dim)
	}

	secWeight := sector.Weights[sec]
	if secWeight == 0 {
		secWeight = 1.0
	}
	secPrefix := string(sec)

	counts := make(map[string]int, len(extended))
	for _, tok := range extended {
		counts[tok]++
	}

	// TF-IDF-like weighted sign per distinct token: tf = c/el,
	// idf = log(1 + el/c), w = (tf*idf + 1) * sec_weight.
	for tok, c := range counts {
		tf := float64(c) / float64(el)
		idf := math.Log(1 + float64(el)/float64(c))
		w := (tf*idf + 1) * secWeight
		s.accumulate(v, secPrefix+"|tok|"+tok, w)
		if len(tok) >= 3 {
			for j := 0; j+3 <= len(tok); j++ {
				trigram := tok[j : j+3]
				s.accumulate(v, secPrefix+"|c3|"+trigram, w*0.4)
			}
		}
	}

	for i := 0; i+1 < len(tokens); i++ {
		positional := 1.0 / float64(1+i)
		bigramKey := secPrefix + "|bi|" + tokens[i] + "_" + tokens[i+1]
		s.accumulate(v, bigramKey, 1.4*secWeight*positional)
	}

	dl := math.Log(1 + float64(el))
	posWeight := (0.5 * secWeight) / dl
	limit := len(tokens)
	if limit > 50 {
		limit = 50
	}
	for i := 0; i < limit; i++ {
		addPositionalFeature(v, i, posWeight)
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		inv := float32(1.0 / math.Sqrt(sum))
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

// addPositionalFeature adds a sinusoidal perturbation at a single
// position-derived index pair, scaled by w (sector-weighted and
// length-normalized by the caller), so the first 50 token positions leave a
// position-dependent signature distinct from pure bag-of-features hashing.
func addPositionalFeature(v []float32, pos int, w float64) {
	dim := len(v)
	if dim == 0 {
		return
	}
	idx := pos % dim
	angle := float64(pos) / math.Pow(10000, float64(2*idx)/float64(dim))
	v[idx] += float32(w * math.Sin(angle))
	v[(idx+1)%dim] += float32(w * math.Cos(angle))
}

func uniformUnit(dim int) []float32 {
	v := make([]float32, dim)
	if dim == 0 {
		return v
	}
	val := float32(1.0 / math.Sqrt(float64(dim)))
	for i := range v {
		v[i] = val
	}
	return v
}
