package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a referenced row does not exist. Backends
// wrap it so callers can test with errors.Is.
var ErrNotFound = errors.New("storage: not found")

// Ledger defines the complete storage interface. This interface allows
// swapping implementations (in-memory, SQLite, Postgres) and makes testing
// straightforward. The reconciliation core only ever talks to this.
type Ledger interface {
	TransactionLedger
	EnvelopeLedger
	AccountLedger
	RecurringIncomeLedger
	ImportRunLedger
	Close() error
}

// TransactionLedger handles transaction and split operations.
type TransactionLedger interface {
	// TransactionsForUser returns every transaction owned by the user,
	// oldest first.
	TransactionsForUser(ctx context.Context, userID int64) ([]*Transaction, error)

	// Transaction retrieves one transaction by id.
	Transaction(ctx context.Context, id int64) (*Transaction, error)

	// CreateTransaction persists a new transaction and returns it with its
	// assigned id.
	CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error)

	// UpdateTransaction applies a partial update as a single write.
	UpdateTransaction(ctx context.Context, id int64, update TransactionUpdate) error

	// CreateSplit records an envelope allocation for a transaction.
	CreateSplit(ctx context.Context, transactionID, envelopeID int64, amount string) error

	// SplitsForTransaction returns all envelope allocations of a transaction.
	SplitsForTransaction(ctx context.Context, transactionID int64) ([]*TransactionEnvelope, error)

	// DeleteSplits removes every allocation owned by a transaction.
	DeleteSplits(ctx context.Context, transactionID int64) error
}

// EnvelopeLedger handles envelope operations.
type EnvelopeLedger interface {
	Envelope(ctx context.Context, id int64) (*Envelope, error)
	EnvelopesForUser(ctx context.Context, userID int64) ([]*Envelope, error)
	CreateEnvelope(ctx context.Context, env *Envelope) (*Envelope, error)
	UpdateEnvelopeBalance(ctx context.Context, id int64, balance string) error
}

// AccountLedger handles account operations.
type AccountLedger interface {
	Account(ctx context.Context, id int64) (*Account, error)
	AccountsForUser(ctx context.Context, userID int64) ([]*Account, error)
	CreateAccount(ctx context.Context, acct *Account) (*Account, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance string) error
}

// RecurringIncomeLedger handles recurring-income definitions.
type RecurringIncomeLedger interface {
	// RecurringIncomesForUser returns definitions in stable storage order.
	// The recurring matcher is first-fit, so this order is load-bearing.
	RecurringIncomesForUser(ctx context.Context, userID int64) ([]*RecurringIncome, error)
	CreateRecurringIncome(ctx context.Context, ri *RecurringIncome) (*RecurringIncome, error)
}

// ImportRunLedger records feed import cycles.
type ImportRunLedger interface {
	SaveImportRun(ctx context.Context, run *ImportRun) error
	ImportRuns(ctx context.Context, userID int64, limit int) ([]*ImportRun, error)
}
