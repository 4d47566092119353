// Package feed abstracts the external bank-transaction feed. The real
// aggregation protocol (polling cadence, auth, pagination) lives behind the
// Client interface; the core only sees pages of records.
package feed

import "context"

// Record is one transaction as delivered by the feed.
type Record struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	Merchant    string `json:"merchant"`
	Description string `json:"description,omitempty"`
	Memo        string `json:"memo,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// Client fetches recent transactions for one feed-side account.
type Client interface {
	// Transactions returns the current page of records for the account.
	// A failure abandons the import for that account; the next scheduled
	// cycle retries.
	Transactions(ctx context.Context, accountRef string) ([]Record, error)
}
