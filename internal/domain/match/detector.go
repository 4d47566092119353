package match

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// Confidence grades how sure the detector is that its top candidate is the
// same real-world payment as the incoming record.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Config holds detector tuning. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	DateWindowDays   int // candidate window around the incoming date, inclusive
	ScoreThreshold   int // minimum score to flag a potential duplicate
	HighConfidence   int // top score at or above this is high confidence
	MediumConfidence int // top score at or above this is medium confidence
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		DateWindowDays:   3,
		ScoreThreshold:   50,
		HighConfidence:   85,
		MediumConfidence: 70,
	}
}

// Incoming is the bank-feed view of a transaction, before it exists in the
// ledger.
type Incoming struct {
	Amount            string
	Date              string
	Merchant          string
	BankTransactionID string
}

// Result is the detector's classification of one incoming record.
// ExactMatch is set only on a fingerprint hit, in which case
// PotentialDuplicates is empty and Confidence is high.
type Result struct {
	ExactMatch          *storage.Transaction
	PotentialDuplicates []*storage.Transaction
	Confidence          Confidence
}

// Detector scores existing transactions against incoming bank records.
type Detector struct {
	config Config
}

// NewDetector creates a detector with the given config.
func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// amountTolerances for the scoring buckets: 5 cents covers rounding, a
// dollar covers card fees and tip adjustments.
var (
	centsTolerance  = decimal.RequireFromString("0.05")
	dollarTolerance = decimal.RequireFromString("1.00")
)

// similarity tiers for normalized merchant names.
const (
	simStrong = 0.8
	simGood   = 0.6
	simWeak   = 0.4
)

// Detect classifies an incoming bank record against the user's existing
// transactions. Candidates are narrowed to the same account, dates within
// the window, and non-bank origin (a bank row never merges with another
// bank row); a stored fingerprint equal to the incoming one short-circuits
// as an exact match, otherwise every candidate is scored and those at or
// above the threshold are returned ordered by descending score. Detect is
// a pure read: it never mutates the ledger.
func (d *Detector) Detect(in Incoming, accountID int64, existing []*storage.Transaction) (*Result, error) {
	inDate, err := parseDate(in.Date)
	if err != nil {
		return nil, fmt.Errorf("incoming transaction date %q: %w", in.Date, err)
	}

	fingerprint := Fingerprint(in.Amount, in.Date, in.Merchant)

	var candidates []*storage.Transaction
	for _, tx := range existing {
		if tx.AccountID != accountID || tx.SourceType == storage.SourceBankSync {
			continue
		}
		txDate, err := parseDate(tx.Date)
		if err != nil {
			// Rows with unparseable dates can never land in a day
			// bucket; leave them out of the candidate set.
			continue
		}
		if dayDiff(inDate, txDate) > d.config.DateWindowDays {
			continue
		}
		candidates = append(candidates, tx)
	}

	// Fingerprint hit wins outright, no scoring.
	for _, tx := range candidates {
		if tx.BankHash != nil && *tx.BankHash == fingerprint {
			return &Result{
				ExactMatch:          tx,
				PotentialDuplicates: []*storage.Transaction{},
				Confidence:          ConfidenceHigh,
			}, nil
		}
	}

	type scored struct {
		tx    *storage.Transaction
		score int
	}

	var potentials []scored
	for _, tx := range candidates {
		score := d.score(in, inDate, tx)
		if score >= d.config.ScoreThreshold {
			potentials = append(potentials, scored{tx: tx, score: score})
		}
	}

	// Stable sort preserves storage order among equal scores.
	sort.SliceStable(potentials, func(i, j int) bool {
		return potentials[i].score > potentials[j].score
	})

	result := &Result{
		PotentialDuplicates: make([]*storage.Transaction, 0, len(potentials)),
		Confidence:          ConfidenceLow,
	}
	for _, p := range potentials {
		result.PotentialDuplicates = append(result.PotentialDuplicates, p.tx)
	}
	if len(potentials) > 0 {
		top := potentials[0].score
		switch {
		case top >= d.config.HighConfidence:
			result.Confidence = ConfidenceHigh
		case top >= d.config.MediumConfidence:
			result.Confidence = ConfidenceMedium
		}
	}
	return result, nil
}

// score totals the additive point buckets for one candidate. Each bucket
// awards its single highest-qualifying tier.
func (d *Detector) score(in Incoming, inDate time.Time, tx *storage.Transaction) int {
	score := 0

	// Amount: exact string equality outranks numeric closeness.
	if tx.Amount == in.Amount {
		score += 40
	} else if txAmt, err1 := decimal.NewFromString(tx.Amount); err1 == nil {
		if inAmt, err2 := decimal.NewFromString(in.Amount); err2 == nil {
			diff := txAmt.Sub(inAmt).Abs()
			if diff.LessThanOrEqual(centsTolerance) {
				score += 35
			} else if diff.LessThanOrEqual(dollarTolerance) {
				score += 20
			}
		}
	}

	// Date proximity. Candidate dates parsed during filtering, so this
	// cannot fail here.
	txDate, _ := parseDate(tx.Date)
	switch dayDiff(inDate, txDate) {
	case 0:
		score += 30
	case 1:
		score += 25
	case 2:
		score += 15
	case 3:
		score += 10
	}

	// Merchant: exact normalized equality, then fuzzy tiers.
	inMerchant := NormalizeMerchant(in.Merchant)
	txMerchant := NormalizeMerchant(tx.Merchant)
	if inMerchant == txMerchant {
		score += 25
	} else {
		switch sim := Similarity(inMerchant, txMerchant); {
		case sim > simStrong:
			score += 20
		case sim > simGood:
			score += 15
		case sim > simWeak:
			score += 10
		}
	}

	// Unapproved rows are likelier to be manual entries awaiting their
	// bank counterpart.
	if !tx.IsApproved {
		score += 5
	}

	return score
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}

// parseDate accepts the plain dates the ledger stores plus the timestamp
// forms bank feeds tend to send, normalized to a UTC day.
func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// dayDiff returns the absolute whole-day difference between two
// midnight-normalized dates.
func dayDiff(a, b time.Time) int {
	diff := int(a.Sub(b).Hours() / 24)
	if diff < 0 {
		diff = -diff
	}
	return diff
}
