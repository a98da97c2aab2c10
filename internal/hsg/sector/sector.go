// Package sector implements the five-way cognitive sector classifier and
// the static configuration (regex sets, weights, decay rates, resonance and
// penalty matrices) that both the classifier and the retrieval engine
// consult.
package sector

import "regexp"

// Sector is one of the five closed cognitive labels.
type Sector string

const (
	Episodic   Sector = "episodic"
	Semantic   Sector = "semantic"
	Procedural Sector = "procedural"
	Emotional  Sector = "emotional"
	Reflective Sector = "reflective"
)

// All lists every sector in the canonical resonance-matrix order.
var All = []Sector{Episodic, Semantic, Procedural, Emotional, Reflective}

// Config describes one sector's classifier patterns, weight, and decay
// baseline. Regex sets are copied verbatim from the authoritative source.
type Config struct {
	Model       string
	DecayLambda float64
	Weight      float64
	Patterns    []*regexp.Regexp
}

func ci(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + pattern)
}

// Configs is the authoritative per-sector regex/weight table.
var Configs = map[Sector]Config{
	Episodic: {
		Model:       "episodic-optimized",
		DecayLambda: 0.015,
		Weight:      1.2,
		Patterns: []*regexp.Regexp{
			ci(`\b(today|yesterday|tomorrow|last\s+(week|month|year)|next\s+(week|month|year))\b`),
			ci(`\b(remember\s+when|recall|that\s+time|when\s+I|I\s+was|we\s+were)\b`),
			ci(`\b(went|saw|met|felt|heard|visited|attended|participated)\b`),
			ci(`\b(at\s+\d{1,2}:\d{2}|on\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday))\b`),
			ci(`\b(event|moment|experience|incident|occurrence|happened)\b`),
			ci(`\bI\s+'?m\s+going\s+to\b`),
		},
	},
	Semantic: {
		Model:       "semantic-optimized",
		DecayLambda: 0.005,
		Weight:      1.0,
		Patterns: []*regexp.Regexp{
			ci(`\b(is\s+a|represents|means|stands\s+for|defined\s+as)\b`),
			ci(`\b(concept|theory|principle|law|hypothesis|theorem|axiom)\b`),
			ci(`\b(fact|statistic|data|evidence|proof|research|study|report)\b`),
			ci(`\b(capital|population|distance|weight|height|width|depth)\b`),
			ci(`\b(history|science|geography|math|physics|biology|chemistry)\b`),
			ci(`\b(know|understand|learn|read|write|speak)\b`),
		},
	},
	Procedural: {
		Model:       "procedural-optimized",
		DecayLambda: 0.008,
		Weight:      1.1,
		Patterns: []*regexp.Regexp{
			ci(`\b(how\s+to|step\s+by\s+step|guide|tutorial|manual|instructions)\b`),
			ci(`\b(first|second|then|next|finally|afterwards|lastly)\b`),
			ci(`\b(install|run|execute|compile|build|deploy|configure|setup)\b`),
			ci(`\b(click|press|type|enter|select|drag|drop|scroll)\b`),
			ci(`\b(method|function|class|algorithm|routine|recipie)\b`),
			ci(`\b(to\s+do|to\s+make|to\s+build|to\s+create)\b`),
		},
	},
	Emotional: {
		Model:       "emotional-optimized",
		DecayLambda: 0.02,
		Weight:      1.3,
		Patterns: []*regexp.Regexp{
			ci(`\b(feel|feeling|felt|emotions?|mood|vibe)\b`),
			ci(`\b(happy|sad|angry|mad|excited|scared|anxious|nervous|depressed)\b`),
			ci(`\b(love|hate|like|dislike|adore|detest|enjoy|loathe)\b`),
			ci(`\b(amazing|terrible|awesome|awful|wonderful|horrible|great|bad)\b`),
			ci(`\b(frustrated|confused|overwhelmed|stressed|relaxed|calm)\b`),
			ci(`\b(wow|omg|yay|nooo|ugh|sigh)\b`),
			ci(`[!]{2,}`),
		},
	},
	Reflective: {
		Model:       "reflective-optimized",
		DecayLambda: 0.001,
		Weight:      0.8,
		Patterns: []*regexp.Regexp{
			ci(`\b(realize|realized|realization|insight|epiphany)\b`),
			ci(`\b(think|thought|thinking|ponder|contemplate|reflect)\b`),
			ci(`\b(understand|understood|understanding|grasp|comprehend)\b`),
			ci(`\b(pattern|trend|connection|link|relationship|correlation)\b`),
			ci(`\b(lesson|moral|takeaway|conclusion|summary|implication)\b`),
			ci(`\b(feedback|review|analysis|evaluation|assessment)\b`),
			ci(`\b(improve|grow|change|adapt|evolve)\b`),
		},
	},
}

// Weights exposes each sector's classifier/embedder weight.
var Weights = func() map[Sector]float64 {
	w := make(map[Sector]float64, len(Configs))
	for s, c := range Configs {
		w[s] = c.Weight
	}
	return w
}()

// TemporalMarkerPattern matches the episodic temporal cues the retrieval
// engine uses to bias query sector selection toward episodic.
var TemporalMarkerPattern = ci(`\b(today|yesterday|tomorrow|last\s+(week|month|year)|next\s+(week|month|year)|when\s+I|that\s+time)\b`)

// index gives each sector's row/column position in ResonanceMatrix and
// PenaltyMatrix, in the canonical order episodic, semantic, procedural,
// emotional, reflective.
var index = map[Sector]int{
	Episodic:   0,
	Semantic:   1,
	Procedural: 2,
	Emotional:  3,
	Reflective: 4,
}

// ResonanceMatrix is the symmetric 5x5 cross-sector affinity matrix R.
var ResonanceMatrix = [5][5]float64{
	{1.0, 0.7, 0.3, 0.6, 0.6},
	{0.7, 1.0, 0.4, 0.7, 0.8},
	{0.3, 0.4, 1.0, 0.5, 0.2},
	{0.6, 0.7, 0.5, 1.0, 0.8},
	{0.6, 0.8, 0.2, 0.8, 1.0},
}

// Resonance returns R[a][b].
func Resonance(a, b Sector) float64 {
	ai, aok := index[a]
	bi, bok := index[b]
	if !aok || !bok {
		return 0.4
	}
	return ResonanceMatrix[ai][bi]
}

// penaltyMatrix holds the directional query-sector -> memory-sector
// penalties; lookups for unlisted pairs default to 0.3.
var penaltyMatrix = map[Sector]map[Sector]float64{
	Semantic:   {Procedural: 0.8, Episodic: 0.6, Reflective: 0.7, Emotional: 0.4},
	Procedural: {Semantic: 0.8, Episodic: 0.6, Reflective: 0.6, Emotional: 0.3},
	Episodic:   {Reflective: 0.8, Semantic: 0.6, Procedural: 0.6, Emotional: 0.7},
	Reflective: {Episodic: 0.8, Semantic: 0.7, Procedural: 0.6, Emotional: 0.6},
	Emotional:  {Episodic: 0.7, Reflective: 0.6, Semantic: 0.4, Procedural: 0.3},
}

const defaultPenalty = 0.3

// Penalty returns the directional penalty applied when fusing a memory of
// sector mem against a query classified as sector query. Same-sector pairs
// always return 1.0.
func Penalty(query, mem Sector) float64 {
	if query == mem {
		return 1.0
	}
	if row, ok := penaltyMatrix[query]; ok {
		if v, ok := row[mem]; ok {
			return v
		}
	}
	return defaultPenalty
}

// fusionWeights gives the {matching, other} sector-affinity weight pair used
// by the multi-vector fusion step (§4.10), keyed by the query's primary
// sector.
var fusionWeights = map[Sector][2]float64{
	Semantic:   {1.2, 0.8},
	Emotional:  {1.5, 0.6},
	Procedural: {1.3, 0.7},
	Episodic:   {1.4, 0.7},
	Reflective: {1.1, 0.5},
}

// FusionWeight returns the weight applied to a candidate vector's sector
// when fusing against a query classified into querySector: the "matching"
// weight when vecSector == querySector, else the "other" weight.
func FusionWeight(querySector, vecSector Sector) float64 {
	pair, ok := fusionWeights[querySector]
	if !ok {
		pair = [2]float64{1.0, 0.7}
	}
	if vecSector == querySector {
		return pair[0]
	}
	return pair[1]
}

// Classification is the result of classifying a piece of text.
type Classification struct {
	Primary    Sector
	Additional []Sector
	Confidence float64
}

// Classify scores text against every sector's pattern list. If
// metadataSector names a valid sector it wins outright with confidence 1.0.
func Classify(text string, metadataSector string) Classification {
	if s := Sector(metadataSector); metadataSector != "" {
		if _, ok := Configs[s]; ok {
			return Classification{Primary: s, Confidence: 1.0}
		}
	}

	scores := make(map[Sector]float64, len(All))
	for _, s := range All {
		cfg := Configs[s]
		var matches float64
		for _, pat := range cfg.Patterns {
			matches += float64(len(pat.FindAllStringIndex(text, -1)))
		}
		scores[s] = matches * cfg.Weight
	}

	primary := Semantic
	var pScore, sScore float64
	first := true
	for _, s := range All {
		sc := scores[s]
		if first || sc > pScore {
			sScore = pScore
			pScore = sc
			primary = s
			first = false
		} else if sc > sScore {
			sScore = sc
		}
	}

	if pScore == 0 {
		return Classification{Primary: Semantic, Confidence: 0.2}
	}

	threshold := 0.3 * pScore
	if threshold < 1.0 {
		threshold = 1.0
	}
	var additional []Sector
	for _, s := range All {
		if s == primary {
			continue
		}
		if scores[s] >= threshold {
			additional = append(additional, s)
		}
	}

	confidence := pScore / (pScore + sScore + 1)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Classification{Primary: primary, Additional: additional, Confidence: confidence}
}
