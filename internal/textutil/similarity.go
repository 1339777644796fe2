package textutil

import "math"

// Fingerprint represents a term-frequency vector for text similarity
// comparison.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint creates a fingerprint from the provided text. Returns nil
// if the text produces no valid tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &Fingerprint{
		tokens: counts,
		norm:   math.Sqrt(norm),
	}
}

// Similarity computes the cosine similarity between two fingerprints in
// [0, 1]. Nil fingerprints compare as 0.
func (f *Fingerprint) Similarity(other *Fingerprint) float64 {
	if f == nil || other == nil || f.norm == 0 || other.norm == 0 {
		return 0
	}
	var dot float64
	small, large := f, other
	if len(other.tokens) < len(f.tokens) {
		small, large = other, f
	}
	for token, count := range small.tokens {
		if match, ok := large.tokens[token]; ok {
			dot += count * match
		}
	}
	return dot / (f.norm * other.norm)
}

// TitleSimilarity scores how closely two titles match, in [0, 1].
func TitleSimilarity(a, b string) float64 {
	return NewFingerprint(a).Similarity(NewFingerprint(b))
}
