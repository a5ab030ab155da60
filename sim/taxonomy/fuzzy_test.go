package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		atLeast int
		atMost  int
	}{
		{"identical after case folding", "Dairy", "dairy", 100, 100},
		{"punctuation ignored", "Health & Beauty", "health beauty", 100, 100},
		{"token order ignored", "beauty health", "Health and beauty", 90, 100},
		{"prefix of longer label", "bakery", "Bakery Goods", 85, 95},
		{"unrelated", "furniture", "dairy", 0, 40},
		{"empty", "", "dairy", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.a, tt.b)
			if got < tt.atLeast || got > tt.atMost {
				t.Errorf("Score(%q, %q) = %d, want in [%d, %d]", tt.a, tt.b, got, tt.atLeast, tt.atMost)
			}
		})
	}
}

func TestScore_Symmetric(t *testing.T) {
	pairs := [][2]string{{"bakery", "bakery goods"}, {"home", "decor"}, {"food", "good food"}}
	for _, p := range pairs {
		assert.Equal(t, Score(p[0], p[1]), Score(p[1], p[0]), "%q vs %q", p[0], p[1])
	}
}

func TestExtractOne_FirstSeenWinsTies(t *testing.T) {
	m, ok := ExtractOne("tea", []string{"coffee", "tea", "tea"})
	assert.True(t, ok)
	assert.Equal(t, 1, m.Index)
	assert.Equal(t, 100, m.Score)

	_, ok = ExtractOne("tea", nil)
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "food beverages", Normalize("  Food & Beverages!"))
}
