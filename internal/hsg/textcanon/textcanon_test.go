package textcanon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("Hello, World! 123")
	assert.Equal(t, []string{"hello", "world", "123"}, got)
}

func TestStem(t *testing.T) {
	cases := map[string]string{
		"parties":  "party",
		"running":  "runn",
		"runners":  "runner",
		"walker":   "walker",
		"wanted":   "want",
		"cats":     "cat",
		"a":        "a",
		"is":       "is",
		"bugs":     "bug",
		"studying": "study",
	}
	for in, want := range cases {
		assert.Equal(t, want, Stem(in), "stem(%q)", in)
	}
}

func TestCanonicalizeSynonyms(t *testing.T) {
	assert.Equal(t, "happy", Canonicalize("glad"))
	assert.Equal(t, "happy", Canonicalize("happy"))
	assert.Equal(t, "big", Canonicalize("huge"))
}

func TestCanonicalTokensFiltersShort(t *testing.T) {
	toks := CanonicalTokens("I am a big dog")
	for _, tok := range toks {
		require.GreaterOrEqual(t, len(tok), 2)
	}
}

func TestCanonicalTokenSetPurity(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog"
	a := CanonicalTokenSet(text)
	b := CanonicalTokenSet(text)
	assert.Equal(t, a, b)
}

func TestKeywordSetIncludesNgrams(t *testing.T) {
	set := KeywordSet("alpha beta gamma", 3)
	_, hasBigram := set["alpha_beta"]
	_, hasTrigram := set["alpha_beta_gamma"]
	assert.True(t, hasBigram)
	assert.True(t, hasTrigram)
}
