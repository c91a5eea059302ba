package textutil

// Similarity is the cosine of the angle between two term-frequency vectors,
// in [0, 1]. A nil fingerprint is similar to nothing.
func (f *Fingerprint) Similarity(other *Fingerprint) float64 {
	if f == nil || other == nil || f.norm == 0 || other.norm == 0 {
		return 0
	}
	small, large := f.tokens, other.tokens
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for token, count := range small {
		dot += count * large[token]
	}
	return dot / (f.norm * other.norm)
}

// DistinctIndexes returns, in order, the indexes of texts that are not
// near-duplicates of an earlier kept text. A text is a near-duplicate when
// its similarity to any kept text reaches threshold. Texts without usable
// tokens are always kept.
func DistinctIndexes(texts []string, threshold float64) []int {
	kept := make([]int, 0, len(texts))
	seen := make([]*Fingerprint, 0, len(texts))
next:
	for i, text := range texts {
		fp := NewFingerprint(text)
		for _, prior := range seen {
			if fp.Similarity(prior) >= threshold {
				continue next
			}
		}
		kept = append(kept, i)
		if fp != nil {
			seen = append(seen, fp)
		}
	}
	return kept
}
