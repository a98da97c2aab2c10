// Package retrieval implements C10: the hybrid scoring retrieval engine.
// This file covers §4.11's lexical scoring support: weighted keyword-set
// overlap (the fusion pipeline's "kw" term) and an alternate BM25 scorer,
// both ported from the original source's utils/keyword.py.
package retrieval

import (
	"math"
	"strings"

	"hsg/internal/hsg/textcanon"
)

// KeywordOverlap returns matches/total_weight over the expanded keyword
// sets (textcanon.KeywordSet) of query and content, weighting any feature
// containing an underscore (a bi/trigram) 2x a plain unigram.
func KeywordOverlap(query, content string, minLen int) float64 {
	qk := textcanon.KeywordSet(query, minLen)
	ck := textcanon.KeywordSet(content, minLen)
	if len(qk) == 0 {
		return 0
	}
	var matches, total float64
	for k := range qk {
		w := 1.0
		if strings.Contains(k, "_") {
			w = 2.0
		}
		if _, ok := ck[k]; ok {
			matches += w
		}
		total += w
	}
	if total == 0 {
		return 0
	}
	return matches / total
}

// BM25Params configures BM25Score's corpus-average assumptions.
type BM25Params struct {
	K1            float64
	B             float64
	CorpusSize    int
	AvgDocLength  float64
}

// DefaultBM25Params mirrors the original source's compute_bm25_score
// defaults, exposed as a configurable alternate lexical scorer (§4.11).
var DefaultBM25Params = BM25Params{K1: 1.5, B: 0.75, CorpusSize: 10000, AvgDocLength: 100}

// BM25Score scores content's canonical terms against query's canonical
// terms using Okapi BM25 with a configurable corpus average length, used as
// an alternate lexical scorer alongside KeywordOverlap.
func BM25Score(query, content string, p BM25Params) float64 {
	if p.K1 == 0 && p.B == 0 {
		p = DefaultBM25Params
	}
	queryTerms := textcanon.CanonicalTokens(query)
	contentTerms := textcanon.CanonicalTokens(content)

	termFreq := make(map[string]int, len(contentTerms))
	for _, t := range contentTerms {
		termFreq[t]++
	}
	docLen := float64(len(contentTerms))
	avgLen := p.AvgDocLength
	if avgLen <= 0 {
		avgLen = DefaultBM25Params.AvgDocLength
	}
	corpusSize := p.CorpusSize
	if corpusSize <= 0 {
		corpusSize = DefaultBM25Params.CorpusSize
	}

	var score float64
	for _, qt := range queryTerms {
		tf := termFreq[qt]
		if tf == 0 {
			continue
		}
		idf := math.Log((float64(corpusSize) + 1) / (float64(tf) + 0.5))
		num := float64(tf) * (p.K1 + 1)
		den := float64(tf) + p.K1*(1-p.B+p.B*(docLen/avgLen))
		score += idf * (num / den)
	}
	return score
}
