package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	t.Run("identical strings score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("countdown", "countdown"))
	})

	t.Run("both empty score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("", ""))
	})

	t.Run("one empty scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity("countdown", ""))
		assert.Equal(t, 0.0, Similarity("", "countdown"))
	})

	t.Run("classic edit distance example", func(t *testing.T) {
		// kitten -> sitting is 3 edits over max length 7.
		assert.InDelta(t, 4.0/7.0, Similarity("kitten", "sitting"), 1e-9)
	})

	t.Run("single substitution", func(t *testing.T) {
		assert.InDelta(t, 8.0/9.0, Similarity("countdown", "countdawn"), 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		pairs := [][2]string{
			{"countdown", "count down"},
			{"new world", "pak n save"},
			{"a", "abc"},
		}
		for _, p := range pairs {
			assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "pair %v", p)
		}
	})

	t.Run("bounded to unit interval", func(t *testing.T) {
		sim := Similarity("z energy", "completely unrelated merchant name")
		assert.GreaterOrEqual(t, sim, 0.0)
		assert.LessOrEqual(t, sim, 1.0)
	})

	t.Run("handles multibyte runes", func(t *testing.T) {
		// One rune substitution over four runes, not a byte-level diff.
		assert.InDelta(t, 3.0/4.0, Similarity("café", "cafe"), 1e-9)
	})
}
