// Package simhash implements the 64-bucket SimHash fingerprint used for
// near-duplicate detection on insert, including the reference
// implementation's deliberate 32-bit wraparound: the accumulator is a
// 32-bit value and bucket i mirrors bucket i+32.
package simhash

import (
	"fmt"

	"hsg/internal/hsg/textcanon"
)

// tokenHash32 hashes a token with the reference accumulator
// h = (h<<5) - h + codepoint, wrapping at 32 bits.
func tokenHash32(token string) uint32 {
	var h uint32
	for _, r := range token {
		h = (h << 5) - h + uint32(r)
	}
	return h
}

const buckets = 64

// Compute returns the 16-hex-character SimHash fingerprint of text.
func Compute(text string) string {
	tokens := textcanon.CanonicalTokens(text)
	weights := make([]int, buckets)
	for _, tok := range tokens {
		h := tokenHash32(tok)
		for i := 0; i < buckets; i++ {
			bit := h & (1 << uint(i%32))
			if bit != 0 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < buckets; i++ {
		if weights[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fmt.Sprintf("%016x", fp)
}

// Hamming returns the Hamming distance between two 16-hex-char fingerprints.
// A malformed fingerprint is treated as entirely mismatched (distance 64).
func Hamming(a, b string) int {
	av, aerr := parseHex(a)
	bv, berr := parseHex(b)
	if aerr != nil || berr != nil {
		return buckets
	}
	x := av ^ bv
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}

func parseHex(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%016x", &v)
	return v, err
}
