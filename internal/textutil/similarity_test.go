package textutil

import (
	"math"
	"reflect"
	"testing"
)

func TestSimilarityBounds(t *testing.T) {
	tests := []struct {
		name string
		a, b *Fingerprint
		want float64
	}{
		{"nil receiver", nil, NewFingerprint("residual connections"), 0},
		{"nil other", NewFingerprint("residual connections"), nil, 0},
		{"zero norm", &Fingerprint{tokens: map[string]float64{}}, NewFingerprint("attention heads"), 0},
		{"disjoint", NewFingerprint("transformer encoder"), NewFingerprint("convolution kernel"), 0},
		{"identical", NewFingerprint("Self-attention replaces recurrence"), NewFingerprint("self attention REPLACES recurrence"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Similarity(tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Similarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimilarityPartialAndSymmetric(t *testing.T) {
	a := NewFingerprint("the model uses multi-head attention layers")
	b := NewFingerprint("attention layers are stacked six times")

	ab, ba := a.Similarity(b), b.Similarity(a)
	if ab <= 0 || ab >= 1 {
		t.Fatalf("expected partial similarity, got %v", ab)
	}
	if math.Abs(ab-ba) > 1e-12 {
		t.Fatalf("similarity not symmetric: %v vs %v", ab, ba)
	}
}

func TestNewFingerprint(t *testing.T) {
	if NewFingerprint("") != nil {
		t.Fatal("expected nil for empty text")
	}
	if NewFingerprint("a an it to") != nil {
		t.Fatal("expected nil when every token is shorter than three characters")
	}
	fp := NewFingerprint("layer layer norm")
	if fp == nil {
		t.Fatal("expected fingerprint")
	}
	if want := math.Sqrt(5); math.Abs(fp.norm-want) > 1e-9 {
		t.Fatalf("norm = %v, want %v", fp.norm, want)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"BLEU score of 28.4", []string{"bleu", "score"}},
		{"Section 3.2: Multi-Head Attention", []string{"section", "multi", "head", "attention"}},
		{"gpt4 vs t5x", []string{"gpt4", "t5x"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		if got := Tokenize(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDistinctIndexesDropsNearDuplicates(t *testing.T) {
	points := []string{
		"The Transformer relies entirely on attention mechanisms",
		"The transformer relies entirely on attention mechanisms.",
		"Training takes 3.5 days on eight GPUs",
		"",
		"Attention mechanisms: the Transformer relies on them entirely",
	}
	got := DistinctIndexes(points, 0.9)
	want := []int{0, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DistinctIndexes = %v, want %v", got, want)
	}
}
