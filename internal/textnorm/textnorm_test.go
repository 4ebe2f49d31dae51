package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase and accent folding",
			input:    "Défaut Moteur",
			expected: "defaut moteur",
		},
		{
			name:     "punctuation becomes spaces",
			input:    "pompe, filtre: vanne!",
			expected: "pompe filtre vanne",
		},
		{
			name:     "whitespace collapses",
			input:    "  la   pompe \t ne  démarre  pas ",
			expected: "la pompe ne demarre pas",
		},
		{
			name:     "ta marbuta folds to ha",
			input:    "مضخة",
			expected: "مضخه",
		},
		{
			name:     "alef maksura folds to ya",
			input:    "مصفى",
			expected: "مصفي",
		},
		{
			name:     "digits survive",
			input:    "Erreur E-42",
			expected: "erreur e 42",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "punctuation only",
			input:    "?! - ...",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Défaut Moteur", "صيانة المضخة", "mise en service"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestBigrams(t *testing.T) {
	set := Bigrams("abc")
	assert.Len(t, set, 2)
	assert.Contains(t, set, "ab")
	assert.Contains(t, set, "bc")

	assert.Empty(t, Bigrams("a"))
	assert.Empty(t, Bigrams(""))
}

func TestBigramSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, BigramSimilarity("pompe", "pompe"))
	assert.Equal(t, 0.0, BigramSimilarity("pompe", "xyzq"))
	assert.Equal(t, 0.0, BigramSimilarity("", "pompe"))
	assert.Equal(t, 0.0, BigramSimilarity("a", "a"))

	// Close variants score high but below 1.
	sim := BigramSimilarity("compresseur", "compressor")
	assert.Greater(t, sim, 0.4)
	assert.Less(t, sim, 1.0)
}
