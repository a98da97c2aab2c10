// Package textcanon implements the pure, deterministic text canonicalization
// primitives shared by the sector classifier, SimHash dedup, and the
// synthetic embedder: tokenization, stemming, synonym canonicalization, and
// n-gram keyword expansion.
package textcanon

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases text and splits it into contiguous alphanumeric runs.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// synonymFamilies groups related words under a single canonical form (the
// first element of each family). Token canonicalization consults this table
// both before and after stemming.
var synonymFamilies = [][]string{
	{"big", "large", "huge", "giant", "massive", "enormous"},
	{"small", "tiny", "little", "mini", "miniature"},
	{"fast", "quick", "rapid", "speedy", "swift"},
	{"slow", "sluggish", "gradual"},
	{"happy", "glad", "joyful", "cheerful", "pleased"},
	{"sad", "unhappy", "down", "blue", "gloomy"},
	{"angry", "mad", "furious", "irate", "annoyed"},
	{"scared", "afraid", "frightened", "anxious", "nervous"},
	{"good", "great", "excellent", "awesome", "wonderful"},
	{"bad", "poor", "terrible", "awful", "horrible"},
	{"start", "begin", "commence", "initiate"},
	{"end", "finish", "conclude", "terminate", "stop"},
	{"make", "create", "build", "construct", "produce"},
	{"fix", "repair", "resolve", "correct"},
	{"error", "bug", "issue", "defect", "fault"},
	{"help", "assist", "aid", "support"},
	{"talk", "speak", "chat", "discuss", "converse"},
	{"buy", "purchase", "acquire"},
	{"use", "utilize", "employ"},
	{"show", "display", "present", "demonstrate"},
	{"think", "believe", "suppose", "reckon"},
	{"want", "desire", "wish", "crave"},
	{"like", "enjoy", "appreciate", "love"},
	{"important", "critical", "crucial", "vital", "key"},
	{"easy", "simple", "straightforward"},
	{"hard", "difficult", "tough", "challenging"},
}

var synonymIndex = buildSynonymIndex()
var familySizeIndex = buildFamilySizeIndex()

func buildSynonymIndex() map[string]string {
	idx := make(map[string]string)
	for _, family := range synonymFamilies {
		canonical := family[0]
		for _, member := range family {
			idx[member] = canonical
		}
	}
	return idx
}

func buildFamilySizeIndex() map[string]int {
	idx := make(map[string]int)
	for _, family := range synonymFamilies {
		idx[family[0]] = len(family)
	}
	return idx
}

// FamilySize returns the number of members in token's synonym family (the
// token is assumed already canonical), or 1 if it belongs to no family.
func FamilySize(canonicalToken string) int {
	if n, ok := familySizeIndex[canonicalToken]; ok {
		return n
	}
	return 1
}

var stemSuffixes = []struct {
	suffix      string
	replacement string
}{
	{"ies", "y"},
	{"ing", ""},
	{"ers", "er"},
	{"er", "er"},
	{"ed", ""},
	{"s", ""},
}

const minStemLen = 3

// Stem applies a small rule table: ies->y, ing->"", ers|er->er, ed->"",
// s->"". A rule only fires if the result stays at least minStemLen long.
func Stem(token string) string {
	for _, rule := range stemSuffixes {
		if !strings.HasSuffix(token, rule.suffix) {
			continue
		}
		if rule.suffix == "er" && strings.HasSuffix(token, "ers") {
			continue // already covered by the "ers" rule
		}
		if len(token)-len(rule.suffix)+len(rule.replacement) >= minStemLen {
			return token[:len(token)-len(rule.suffix)] + rule.replacement
		}
	}
	return token
}

// Canonicalize maps a token to its synonym-family representative, consulting
// the synonym map both before and after stemming.
func Canonicalize(token string) string {
	if canon, ok := synonymIndex[token]; ok {
		token = canon
	}
	stemmed := Stem(token)
	if canon, ok := synonymIndex[stemmed]; ok {
		return canon
	}
	return stemmed
}

// CanonicalTokens returns the stemmed, synonym-canonicalized tokens of text
// with length >= 2, preserving order (including duplicates).
func CanonicalTokens(text string) []string {
	raw := Tokenize(text)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		c := Canonicalize(t)
		if len(c) >= 2 {
			out = append(out, c)
		}
	}
	return out
}

// CanonicalTokenSet returns the deduplicated set of CanonicalTokens.
func CanonicalTokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range CanonicalTokens(text) {
		set[t] = struct{}{}
	}
	return set
}

// KeywordSet expands the canonical token list with character 3-grams and
// word bi/trigrams (joined with an underscore, e.g. "alpha_beta"), filtering
// out any feature shorter than minLen.
func KeywordSet(text string, minLen int) map[string]struct{} {
	tokens := CanonicalTokens(text)
	set := make(map[string]struct{})
	for _, t := range tokens {
		if len(t) >= minLen {
			set[t] = struct{}{}
		}
		for i := 0; i+3 <= len(t); i++ {
			gram := t[i : i+3]
			if len(gram) >= minLen {
				set[gram] = struct{}{}
			}
		}
	}
	for i := 0; i+1 < len(tokens); i++ {
		bigram := tokens[i] + "_" + tokens[i+1]
		set[bigram] = struct{}{}
		if i+2 < len(tokens) {
			trigram := tokens[i] + "_" + tokens[i+1] + "_" + tokens[i+2]
			set[trigram] = struct{}{}
		}
	}
	return set
}
