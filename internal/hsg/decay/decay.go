// Package decay implements C9: tiered exponential salience decay, the
// vector compression/fingerprint ladder, and query-triggered regeneration.
// Pure scoring functions here mirror the sector package's classifier math:
// no logging on the hot compute path, only at the scheduler boundary.
package decay

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/textcanon"
	"hsg/internal/hsg/types"
	"hsg/internal/hsg/veccodec"
)

// Tier is one of the three decay-rate buckets a memory falls into.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

const (
	lambdaHot  = 0.005
	lambdaWarm = 0.02
	lambdaCold = 0.05

	recentWindowDays = 6.0
	hotSalience      = 0.7
	hotFeedback      = 5.0
	coldSalience     = 0.4

	// ColdThresholdDefault is the §4.9/§6 default cold_threshold.
	ColdThresholdDefault = 0.25

	// compressMinDim mirrors veccodec.Compress's own §4.2 default floor;
	// the decay ladder only ever drops below it via the separate
	// fingerprint step, never via ordinary compression.
	compressMinDim = 64
	fingerprintDim = 32

	// RegenerationBoost is the unconditional reinforcement applied to any
	// memory regenerated on query hit (§4.9/§9: distinct from the §4.5
	// dedup-hit boost of +0.15).
	RegenerationBoost = 0.5

	// RegenerationDimThreshold: a stored vector at or below this dimension
	// signals prior compression or fingerprinting.
	RegenerationDimThreshold = 64

	dayMillis = 86400000.0
)

// AssignTier classifies mem into hot/warm/cold per §4.9, returning the tier
// and its associated λ.
func AssignTier(mem *types.Memory, nowMs int64) (Tier, float64) {
	deltaDays := float64(nowMs-mem.LastSeenAt) / dayMillis
	recent := deltaDays < recentWindowDays

	if recent && (mem.FeedbackScore > hotFeedback || mem.Salience > hotSalience) {
		return TierHot, lambdaHot
	}
	if !recent && mem.Salience <= coldSalience {
		return TierCold, lambdaCold
	}
	return TierWarm, lambdaWarm
}

// Result summarizes the outcome of applying one decay step to a memory.
type Result struct {
	Tier          Tier
	Factor        float64 // f = exp(-λ·Δt/(sal+0.1))
	NewSalience   float64
	Compressed    bool
	Fingerprinted bool
}

// Apply runs the full §4.9 decay computation against mem, mutating its
// Salience, DecayLambda, CompressedVec/MeanDim (on compression or
// fingerprint), and Content/Summary (on fingerprint) in place. coldThreshold
// is typically config.DecayColdThreshold (default ColdThresholdDefault).
func Apply(mem *types.Memory, nowMs int64, coldThreshold float64) Result {
	tier, lambda := AssignTier(mem, nowMs)
	deltaDays := float64(nowMs-mem.LastSeenAt) / dayMillis

	base := clamp01(mem.Salience * (1 + math.Log(1+mem.FeedbackScore)))
	f := math.Exp(-lambda * deltaDays / (base + 0.1))
	newSal := clamp01(base * f)

	mem.Salience = newSal
	mem.DecayLambda = lambda

	res := Result{Tier: tier, Factor: f, NewSalience: newSal}

	if f >= 0.7 {
		return res
	}

	source := mem.CompressedVec
	if len(source) == 0 {
		source = mem.MeanVec
	}
	if len(source) > 0 {
		compressed := veccodec.Compress(source, f, compressMinDim, len(source))
		if len(compressed) < len(source) {
			mem.CompressedVec = compressed
			mem.MeanDim = len(compressed)
			res.Compressed = true
		}
	}

	threshold := coldThreshold
	if threshold < ColdThresholdDefault {
		threshold = ColdThresholdDefault
	}
	if threshold < 0.3 {
		threshold = 0.3
	}
	if f >= threshold {
		return res
	}

	fp := fingerprintVector(mem.ID, mem.Summary+mem.Content)
	mem.CompressedVec = fp
	mem.MeanDim = fingerprintDim
	keywords := TopKeywords(mem.Content, 3)
	summary := strings.Join(keywords, " ")
	mem.Content = summary
	mem.Summary = summary
	res.Fingerprinted = true
	return res
}

// Regenerate restores a compressed/fingerprinted memory's stored vector
// using a fresh embed of its content against the primary sector, applying
// the unconditional RegenerationBoost and updating LastSeenAt. Callers
// (the retrieval engine) invoke this whenever a returned memory's MeanDim
// is at or below RegenerationDimThreshold.
func Regenerate(mem *types.Memory, freshVec []float32, nowMs int64) {
	mem.MeanVec = freshVec
	mem.MeanDim = len(freshVec)
	mem.CompressedVec = nil
	mem.Salience = clamp01(mem.Salience + RegenerationBoost)
	mem.LastSeenAt = nowMs
}

// NeedsRegeneration reports whether mem's stored vector dimension signals
// prior compression or fingerprinting.
func NeedsRegeneration(mem *types.Memory) bool {
	return mem.MeanDim > 0 && mem.MeanDim <= RegenerationDimThreshold
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// fingerprintVector derives a deterministic 32-dim hash-based vector from
// id||text, mirroring the synthetic embedder's hashing approach but fixed
// at fingerprintDim regardless of the active embedder's native dimension.
func fingerprintVector(id, text string) []float32 {
	v := make([]float32, fingerprintDim)
	seed := id + "||" + text
	tokens := textcanon.CanonicalTokens(seed)
	if len(tokens) == 0 {
		tokens = []string{seed}
	}
	for _, tok := range tokens {
		h := fnv32(tok)
		i := h % uint32(fingerprintDim)
		sign := float32(1.0)
		if h%2 == 0 {
			sign = -1.0
		}
		v[i] += sign
	}
	veccodec.Normalize(v)
	return v
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// keywordScore is one candidate keyword's frequency-derived weight.
type keywordScore struct {
	token string
	count int
}

// TopKeywords returns the n canonical tokens with the highest frequency in
// text, ties broken by first occurrence order.
func TopKeywords(text string, n int) []string {
	tokens := textcanon.CanonicalTokens(text)
	order := make([]string, 0)
	counts := make(map[string]int)
	for _, t := range tokens {
		if _, ok := counts[t]; !ok {
			order = append(order, t)
		}
		counts[t]++
	}
	scored := make([]keywordScore, 0, len(order))
	for _, t := range order {
		scored = append(scored, keywordScore{token: t, count: counts[t]})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].count > scored[j].count })
	if n > len(scored) {
		n = len(scored)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = scored[i].token
	}
	return out
}

// sentenceEnd is a coarse sentence boundary matcher: good enough for
// the essence extractor, which only needs relative sentence scoring, not
// grammatical precision.
var sentenceEnd = []byte{'.', '!', '?'}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		isEnd := false
		for _, e := range sentenceEnd {
			if c == e {
				isEnd = true
				break
			}
		}
		if isEnd {
			sentence := strings.TrimSpace(text[start : i+1])
			if sentence != "" {
				out = append(out, sentence)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Essence implements the supplemented "essence extraction" feature used at
// ingest time when a store is configured with use_summary_only: content
// longer than maxLen is reduced to its highest-scoring sentences (canonical
// keyword density plus an earlier-is-better position bonus), kept up to the
// length budget and rejoined in original order.
func Essence(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return content[:maxLen]
	}

	keywordFreq := make(map[string]int)
	for _, tok := range textcanon.CanonicalTokens(content) {
		keywordFreq[tok]++
	}

	type scored struct {
		idx   int
		text  string
		score float64
	}
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		tokens := textcanon.CanonicalTokens(s)
		var density float64
		for _, tok := range tokens {
			density += float64(keywordFreq[tok])
		}
		if len(tokens) > 0 {
			density /= float64(len(tokens))
		}
		positionBonus := 1.0 / float64(1+i)
		ranked[i] = scored{idx: i, text: s, score: density + positionBonus}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	kept := make(map[int]bool)
	total := 0
	for _, r := range ranked {
		if total+len(r.text) > maxLen && total > 0 {
			continue
		}
		kept[r.idx] = true
		total += len(r.text) + 1
		if total >= maxLen {
			break
		}
	}

	var sb strings.Builder
	for i, s := range sentences {
		if !kept[i] {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(s)
	}
	out := sb.String()
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	if out == "" {
		return fmt.Sprintf("%.*s", maxLen, content)
	}
	return out
}

// sectorLambda exposes the classifier-table per-sector λ, used when a
// memory's primary sector should influence its decay rate alongside the
// tier-based λ (retrieval's recency/salience scoring, §4.10).
func sectorLambda(s sector.Sector) float64 {
	if cfg, ok := sector.Configs[s]; ok {
		return cfg.DecayLambda
	}
	return lambdaWarm
}

// SectorLambda is the exported form of sectorLambda for retrieval's
// salience-decay scoring term.
func SectorLambda(s sector.Sector) float64 { return sectorLambda(s) }
