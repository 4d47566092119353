package storage

import "time"

// SourceType records where a transaction came from.
type SourceType string

const (
	SourceManual   SourceType = "manual"
	SourceBankSync SourceType = "bank_sync"
	SourceAutoSync SourceType = "akahu_auto_sync"
)

// DuplicateStatus records the outcome of duplicate detection for a transaction.
type DuplicateStatus string

const (
	DuplicateNone      DuplicateStatus = "none"
	DuplicatePotential DuplicateStatus = "potential"
	DuplicateConfirmed DuplicateStatus = "confirmed"
)

// Transaction is one financial movement. Amounts are signed decimal strings:
// negative for expenses, positive for income.
type Transaction struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	AccountID       int64           `json:"account_id"`
	Merchant        string          `json:"merchant"`
	Description     string          `json:"description,omitempty"`
	Amount          string          `json:"amount"`
	Date            string          `json:"date"` // YYYY-MM-DD
	IsApproved      bool            `json:"is_approved"`
	SourceType      SourceType      `json:"source_type"`
	DuplicateStatus DuplicateStatus `json:"duplicate_status"`
	DuplicateOfID   *int64          `json:"duplicate_of_id,omitempty"`

	// Bank feed metadata, nil for purely manual entries.
	BankTransactionID *string `json:"bank_transaction_id,omitempty"`
	BankHash          *string `json:"bank_hash,omitempty"`
	BankReference     *string `json:"bank_reference,omitempty"`
	BankMemo          *string `json:"bank_memo,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TransactionUpdate is a partial update applied to a transaction in one
// write. Nil fields are left untouched.
type TransactionUpdate struct {
	Merchant          *string
	Description       *string
	Amount            *string
	Date              *string
	IsApproved        *bool
	SourceType        *SourceType
	DuplicateStatus   *DuplicateStatus
	DuplicateOfID     *int64
	BankTransactionID *string
	BankHash          *string
}

// Envelope is a named budget bucket. CurrentBalance reflects the sum of all
// approved transaction allocations touching it.
type Envelope struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	Name           string `json:"name"`
	CurrentBalance string `json:"current_balance"`
	BudgetedAmount string `json:"budgeted_amount"`
	CategoryID     *int64 `json:"category_id,omitempty"`
	IsActive       bool   `json:"is_active"`
	IsMonitored    bool   `json:"is_monitored"`
}

// Account is a bank account owned by a user.
type Account struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Balance string `json:"balance"`
}

// TransactionEnvelope allocates part of a transaction's amount to one
// envelope. Rows are owned by their transaction and cascade-deleted with it.
type TransactionEnvelope struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	EnvelopeID    int64  `json:"envelope_id"`
	Amount        string `json:"amount"`
}

// IncomeSplit is one pre-configured envelope allocation of a recurring income.
type IncomeSplit struct {
	EnvelopeID int64  `json:"envelope_id"`
	Amount     string `json:"amount"`
}

// RecurringIncome is a user-configured expected periodic income source with
// pre-set envelope splits. Any amount beyond the splits goes to the surplus
// envelope, when one is configured.
type RecurringIncome struct {
	ID                int64         `json:"id"`
	UserID            int64         `json:"user_id"`
	Name              string        `json:"name"`
	Amount            string        `json:"amount"`
	Splits            []IncomeSplit `json:"splits,omitempty"`
	SurplusEnvelopeID *int64        `json:"surplus_envelope_id,omitempty"`
}

// ImportRun summarizes one feed import cycle for one account.
type ImportRun struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"user_id"`
	AccountID   int64      `json:"account_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Found       int        `json:"found"`
	Created     int        `json:"created"`
	Merged      int        `json:"merged"`
	Flagged     int        `json:"flagged"`
	Failed      int        `json:"failed"`
	Status      string     `json:"status"`
}
