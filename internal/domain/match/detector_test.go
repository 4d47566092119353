package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

func manualTx(id int64, amount, date, merchant string) *storage.Transaction {
	return &storage.Transaction{
		ID:         id,
		UserID:     1,
		AccountID:  1,
		Merchant:   merchant,
		Amount:     amount,
		Date:       date,
		IsApproved: true,
		SourceType: storage.SourceManual,
	}
}

func TestDetector_ExactMatch(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	t.Run("stored fingerprint short-circuits scoring", func(t *testing.T) {
		fp := Fingerprint("-45.00", "2026-03-10", "Countdown")
		existing := manualTx(1, "-45.00", "2026-03-10", "Countdown")
		existing.BankHash = &fp

		in := Incoming{Amount: "-45.00", Date: "2026-03-10", Merchant: "EFTPOS COUNTDOWN AUCKLAND 123"}
		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)

		require.NotNil(t, result.ExactMatch)
		assert.Equal(t, int64(1), result.ExactMatch.ID)
		assert.Empty(t, result.PotentialDuplicates)
		assert.Equal(t, ConfidenceHigh, result.Confidence)
	})

	t.Run("identical fields without stored fingerprint score instead", func(t *testing.T) {
		existing := manualTx(1, "-45.00", "2026-03-10", "Countdown")

		in := Incoming{Amount: "-45.00", Date: "2026-03-10", Merchant: "Countdown"}
		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)

		assert.Nil(t, result.ExactMatch)
		require.Len(t, result.PotentialDuplicates, 1)
		assert.Equal(t, ConfidenceHigh, result.Confidence)
	})
}

func TestDetector_CandidateFiltering(t *testing.T) {
	detector := NewDetector(DefaultConfig())
	fp := Fingerprint("-45.00", "2026-03-10", "Countdown")
	in := Incoming{Amount: "-45.00", Date: "2026-03-10", Merchant: "Countdown"}

	t.Run("other accounts are ignored", func(t *testing.T) {
		existing := manualTx(1, "-45.00", "2026-03-10", "Countdown")
		existing.AccountID = 2
		existing.BankHash = &fp

		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)
		assert.Nil(t, result.ExactMatch)
		assert.Empty(t, result.PotentialDuplicates)
	})

	t.Run("bank originated rows never match bank records", func(t *testing.T) {
		existing := manualTx(1, "-45.00", "2026-03-10", "Countdown")
		existing.SourceType = storage.SourceBankSync
		existing.BankHash = &fp

		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)
		assert.Nil(t, result.ExactMatch)
		assert.Empty(t, result.PotentialDuplicates)
	})

	t.Run("outside the date window is ignored", func(t *testing.T) {
		existing := manualTx(1, "-45.00", "2026-03-14", "Countdown")

		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)
		assert.Empty(t, result.PotentialDuplicates)
	})

	t.Run("candidate with unparseable date is skipped", func(t *testing.T) {
		bad := manualTx(1, "-45.00", "not a date", "Countdown")
		good := manualTx(2, "-45.00", "2026-03-10", "Countdown")

		result, err := detector.Detect(in, 1, []*storage.Transaction{bad, good})
		require.NoError(t, err)
		require.Len(t, result.PotentialDuplicates, 1)
		assert.Equal(t, int64(2), result.PotentialDuplicates[0].ID)
	})

	t.Run("unparseable incoming date is an error", func(t *testing.T) {
		_, err := detector.Detect(Incoming{Amount: "-45.00", Date: "10/03/2026", Merchant: "Countdown"}, 1, nil)
		assert.Error(t, err)
	})

	t.Run("timestamp date formats are accepted", func(t *testing.T) {
		existing := manualTx(1, "-45.00", "2026-03-10", "Countdown")

		result, err := detector.Detect(Incoming{
			Amount:   "-45.00",
			Date:     "2026-03-10T14:30:00Z",
			Merchant: "Countdown",
		}, 1, []*storage.Transaction{existing})
		require.NoError(t, err)
		require.Len(t, result.PotentialDuplicates, 1)
	})
}

func TestDetector_ScoreThreshold(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	t.Run("score of exactly 50 is a potential duplicate", func(t *testing.T) {
		// Same amount (40) + three days apart (10) + unrelated merchant (0).
		existing := manualTx(1, "-50.00", "2026-03-07", "Z Energy")

		in := Incoming{Amount: "-50.00", Date: "2026-03-10", Merchant: "Countdown"}
		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)

		require.Len(t, result.PotentialDuplicates, 1)
		assert.Equal(t, ConfidenceLow, result.Confidence)
	})

	t.Run("score below 50 is discarded", func(t *testing.T) {
		// Within a dollar (20) + one day apart (25) + unrelated merchant (0) = 45.
		existing := manualTx(1, "-50.50", "2026-03-09", "Z Energy")

		in := Incoming{Amount: "-50.00", Date: "2026-03-10", Merchant: "Countdown"}
		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)

		assert.Empty(t, result.PotentialDuplicates)
		assert.Equal(t, ConfidenceLow, result.Confidence)
	})
}

func TestDetector_DateProximityOrdersCandidates(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	// Identical except for date: the same-day candidate must outrank the
	// one three days off.
	sameDay := manualTx(1, "-45.00", "2026-03-10", "Countdown")
	threeOff := manualTx(2, "-45.00", "2026-03-07", "Countdown")

	in := Incoming{Amount: "-45.00", Date: "2026-03-10", Merchant: "Countdown"}
	result, err := detector.Detect(in, 1, []*storage.Transaction{threeOff, sameDay})
	require.NoError(t, err)

	require.Len(t, result.PotentialDuplicates, 2)
	assert.Equal(t, sameDay.ID, result.PotentialDuplicates[0].ID)
}

func TestDetector_ConfidenceTiers(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	t.Run("high at 85 and above", func(t *testing.T) {
		// Within five cents (35) + same day (30) + same merchant (25) = 90.
		existing := manualTx(1, "-45.01", "2026-03-10", "Countdown")

		in := Incoming{Amount: "-45.00", Date: "2026-03-10", Merchant: "Countdown"}
		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)
		assert.Equal(t, ConfidenceHigh, result.Confidence)
	})

	t.Run("medium between 70 and 84", func(t *testing.T) {
		// Same amount (40) + same day (30) + unrelated merchant (0) = 70.
		existing := manualTx(1, "-45.00", "2026-03-10", "Z Energy")

		in := Incoming{Amount: "-45.00", Date: "2026-03-10", Merchant: "Countdown"}
		result, err := detector.Detect(in, 1, []*storage.Transaction{existing})
		require.NoError(t, err)
		assert.Equal(t, ConfidenceMedium, result.Confidence)
	})

	t.Run("unapproved candidate earns the pending bonus", func(t *testing.T) {
		// Two otherwise identical candidates: the unapproved one scores 5
		// higher and sorts first.
		approved := manualTx(1, "-45.00", "2026-03-10", "Z Energy")
		pending := manualTx(2, "-45.00", "2026-03-10", "Z Energy")
		pending.IsApproved = false

		in := Incoming{Amount: "-45.00", Date: "2026-03-10", Merchant: "Countdown"}
		result, err := detector.Detect(in, 1, []*storage.Transaction{approved, pending})
		require.NoError(t, err)

		require.Len(t, result.PotentialDuplicates, 2)
		assert.Equal(t, int64(2), result.PotentialDuplicates[0].ID)
	})
}

func TestDetector_StableOrdering(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	// Equal scores keep their input order.
	first := manualTx(1, "-45.00", "2026-03-10", "Countdown")
	second := manualTx(2, "-45.00", "2026-03-10", "Countdown")

	in := Incoming{Amount: "-45.00", Date: "2026-03-10", Merchant: "Countdown"}
	result, err := detector.Detect(in, 1, []*storage.Transaction{first, second})
	require.NoError(t, err)

	require.Len(t, result.PotentialDuplicates, 2)
	assert.Equal(t, int64(1), result.PotentialDuplicates[0].ID)
	assert.Equal(t, int64(2), result.PotentialDuplicates[1].ID)
}
