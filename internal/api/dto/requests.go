package dto

// CreateTransactionRequest is the payload for manual transaction entry.
type CreateTransactionRequest struct {
	UserID      int64  `json:"user_id"`
	AccountID   int64  `json:"account_id"`
	Merchant    string `json:"merchant"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`

	// Envelopes pre-allocates the amount across envelopes on entry.
	Envelopes []EnvelopeAllocation `json:"envelopes,omitempty"`
}

// EnvelopeAllocation is one requested split.
type EnvelopeAllocation struct {
	EnvelopeID int64  `json:"envelope_id"`
	Amount     string `json:"amount"`
}

// ImportTransactionRequest pushes a single bank-feed-shaped record through
// the reconciliation pipeline.
type ImportTransactionRequest struct {
	UserID            int64  `json:"user_id"`
	AccountID         int64  `json:"account_id"`
	Amount            string `json:"amount"`
	Date              string `json:"date"`
	Merchant          string `json:"merchant"`
	Description       string `json:"description,omitempty"`
	Memo              string `json:"memo,omitempty"`
	BankTransactionID string `json:"bank_transaction_id"`
}
