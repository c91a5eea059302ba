package textutil

import (
	"math"
	"strings"
)

// Fingerprint is a bag-of-words vector for comparing short passages such as
// key points or slide bullets.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint returns nil when text has no token of three or more characters.
func NewFingerprint(text string) *Fingerprint {
	terms := Tokenize(text)
	if len(terms) == 0 {
		return nil
	}
	fp := &Fingerprint{tokens: make(map[string]float64, len(terms))}
	for _, term := range terms {
		fp.tokens[term]++
	}
	var sumSquares float64
	for _, n := range fp.tokens {
		sumSquares += n * n
	}
	fp.norm = math.Sqrt(sumSquares)
	return fp
}

// Tokenize lowercases text and splits it on anything other than ASCII
// letters and digits, dropping tokens shorter than three characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	terms := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	if terms == nil {
		return []string{}
	}
	return terms
}
