package match

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := Fingerprint("-45.00", "2026-03-10", "Countdown")
		b := Fingerprint("-45.00", "2026-03-10", "Countdown")
		assert.Equal(t, a, b)
	})

	t.Run("equal for merchants that normalize identically", func(t *testing.T) {
		manual := Fingerprint("-45.00", "2026-03-10", "Countdown")
		feed := Fingerprint("-45.00", "2026-03-10", "EFTPOS COUNTDOWN AUCKLAND 123")
		assert.Equal(t, manual, feed)
	})

	t.Run("sensitive to each identity field", func(t *testing.T) {
		base := Fingerprint("-45.00", "2026-03-10", "Countdown")
		assert.NotEqual(t, base, Fingerprint("-45.01", "2026-03-10", "Countdown"))
		assert.NotEqual(t, base, Fingerprint("-45.00", "2026-03-11", "Countdown"))
		assert.NotEqual(t, base, Fingerprint("-45.00", "2026-03-10", "New World"))
	})

	t.Run("base36 output", func(t *testing.T) {
		fp := Fingerprint("-45.00", "2026-03-10", "Countdown")
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-z]+$`), fp)
	})

	t.Run("empty inputs still hash", func(t *testing.T) {
		assert.NotEmpty(t, Fingerprint("", "", ""))
	})
}
