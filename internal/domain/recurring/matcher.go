// Package recurring matches incoming income transactions against
// user-configured recurring-income definitions (salary, benefits) so their
// pre-set envelope splits can be applied on import.
package recurring

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// Income is the subset of an incoming bank record the matcher looks at.
type Income struct {
	Amount   string
	Merchant string
	Memo     string
}

var (
	// Five percent covers tax and deduction variations between pay cycles,
	// with a five dollar floor for small incomes.
	tolerancePercent = decimal.RequireFromString("0.05")
	toleranceFloor   = decimal.RequireFromString("5.00")

	// Within a dollar of the expected amount, the amount alone is decisive.
	decisiveDiff = decimal.RequireFromString("1.00")
)

// minKeywordLen filters connective words ("of", "to") out of definition
// names before keyword matching.
const minKeywordLen = 2

// Match returns the first definition the incoming income satisfies, in the
// given storage order, or nil when none match. Matching is first-fit rather
// than best-fit. Expenses (amount <= 0) never match. A definition matches
// when the amount is within tolerance and either a keyword from its name
// appears in the merchant or memo, or the amount is within a dollar of the
// expected value.
func Match(defs []*storage.RecurringIncome, in Income) *storage.RecurringIncome {
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil || amount.Sign() <= 0 {
		return nil
	}

	merchant := strings.ToLower(in.Merchant)
	memo := strings.ToLower(in.Memo)

	for _, def := range defs {
		expected, err := decimal.NewFromString(def.Amount)
		if err != nil {
			continue
		}

		diff := amount.Sub(expected).Abs()
		tolerance := expected.Mul(tolerancePercent)
		if tolerance.LessThan(toleranceFloor) {
			tolerance = toleranceFloor
		}
		if diff.GreaterThan(tolerance) {
			continue
		}

		if hasKeyword(def.Name, merchant, memo) || diff.LessThanOrEqual(decisiveDiff) {
			return def
		}
	}
	return nil
}

func hasKeyword(name, merchant, memo string) bool {
	for _, word := range strings.Fields(strings.ToLower(name)) {
		if len(word) <= minKeywordLen {
			continue
		}
		if strings.Contains(merchant, word) || strings.Contains(memo, word) {
			return true
		}
	}
	return false
}
