// Package importer turns incoming bank-feed records into ledger writes:
// merge with an existing manual entry, flag as a potential duplicate, or
// create a new transaction, applying recurring-income envelope splits and
// approval balance propagation along the way.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/budgetnz/envelope-sync-backend/internal/domain/match"
	"github.com/budgetnz/envelope-sync-backend/internal/domain/recurring"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// ErrInvalidRecord is returned when an incoming record's amount or date
// cannot be parsed. Rejecting up front beats silently mis-scoring it.
var ErrInvalidRecord = errors.New("importer: invalid bank record")

// Action says what Process did with a record.
type Action string

const (
	ActionCreated Action = "created"
	ActionMerged  Action = "merged"
	ActionFlagged Action = "flagged"
)

// Record is one incoming bank-feed transaction.
type Record struct {
	Amount            string
	Date              string
	Merchant          string
	Description       string
	Memo              string
	BankTransactionID string
}

// Outcome reports the decision made for one record. MergedWith carries the
// pre-merge state of the existing transaction when Action is merged.
type Outcome struct {
	Action      Action               `json:"action"`
	Transaction *storage.Transaction `json:"transaction"`
	MergedWith  *storage.Transaction `json:"merged_with,omitempty"`
	Message     string               `json:"message"`
}

// surplusEpsilon: remainders at or below a cent are rounding noise, not
// surplus income.
var surplusEpsilon = decimal.RequireFromString("0.01")

// Processor orchestrates duplicate detection, recurring-income matching and
// the resulting storage mutations for incoming bank records.
type Processor struct {
	ledger   storage.Ledger
	detector *match.Detector
	logger   *slog.Logger
}

// NewProcessor creates a processor backed by the given ledger.
func NewProcessor(ledger storage.Ledger, detector *match.Detector, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{ledger: ledger, detector: detector, logger: logger}
}

// Process classifies and persists one incoming bank record. Callers
// importing a batch must serialize calls per (user, account): detection
// re-reads the transaction set, so concurrent processing of overlapping
// data would miss candidates. Any storage failure aborts this record only.
func (p *Processor) Process(ctx context.Context, rec Record, userID, accountID int64) (*Outcome, error) {
	if _, err := decimal.NewFromString(rec.Amount); err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidRecord, rec.Amount)
	}

	existing, err := p.ledger.TransactionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading transactions for user %d: %w", userID, err)
	}

	in := match.Incoming{
		Amount:            rec.Amount,
		Date:              rec.Date,
		Merchant:          rec.Merchant,
		BankTransactionID: rec.BankTransactionID,
	}
	result, err := p.detector.Detect(in, accountID, existing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if result.ExactMatch != nil {
		return p.merge(ctx, rec, result.ExactMatch)
	}

	if result.Confidence == match.ConfidenceHigh && len(result.PotentialDuplicates) > 0 {
		return p.flag(ctx, rec, userID, accountID, result.PotentialDuplicates[0])
	}

	return p.create(ctx, rec, userID, accountID)
}

// merge folds the bank record into the matched manual entry: the manual
// entry keeps its identity, gains the bank metadata, and is auto-approved
// because the feed corroborates it.
func (p *Processor) merge(ctx context.Context, rec Record, existing *storage.Transaction) (*Outcome, error) {
	fingerprint := match.Fingerprint(rec.Amount, rec.Date, rec.Merchant)
	manual := storage.SourceManual
	confirmed := storage.DuplicateConfirmed

	update := storage.TransactionUpdate{
		BankTransactionID: &rec.BankTransactionID,
		SourceType:        &manual,
		DuplicateStatus:   &confirmed,
		BankHash:          &fingerprint,
	}
	if err := p.ledger.UpdateTransaction(ctx, existing.ID, update); err != nil {
		return nil, fmt.Errorf("merging into transaction %d: %w", existing.ID, err)
	}

	// Approval side effects apply exactly once: if the manual entry was
	// already approved its balances are untouched.
	if err := p.Approve(ctx, existing.ID); err != nil {
		return nil, fmt.Errorf("approving merged transaction %d: %w", existing.ID, err)
	}

	updated, err := p.ledger.Transaction(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading merged transaction %d: %w", existing.ID, err)
	}

	p.logger.Info("merged bank transaction with manual entry",
		"transaction_id", existing.ID, "merchant", rec.Merchant)

	return &Outcome{
		Action:      ActionMerged,
		Transaction: updated,
		MergedWith:  existing,
		Message:     fmt.Sprintf("Matched with existing manual entry for %s", rec.Merchant),
	}, nil
}

// flag creates the bank transaction but holds it for review as a potential
// duplicate of the top-scored candidate. Ambiguity is for a human, not a
// heuristic.
func (p *Processor) flag(ctx context.Context, rec Record, userID, accountID int64, dupe *storage.Transaction) (*Outcome, error) {
	fingerprint := match.Fingerprint(rec.Amount, rec.Date, rec.Merchant)
	dupeID := dupe.ID

	created, err := p.ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID:            userID,
		AccountID:         accountID,
		Merchant:          rec.Merchant,
		Description:       rec.Description,
		Amount:            rec.Amount,
		Date:              rec.Date,
		IsApproved:        false,
		SourceType:        storage.SourceBankSync,
		DuplicateStatus:   storage.DuplicatePotential,
		DuplicateOfID:     &dupeID,
		BankTransactionID: &rec.BankTransactionID,
		BankHash:          &fingerprint,
	})
	if err != nil {
		return nil, fmt.Errorf("creating flagged transaction: %w", err)
	}

	p.logger.Info("flagged potential duplicate",
		"transaction_id", created.ID, "duplicate_of", dupe.ID, "merchant", rec.Merchant)

	return &Outcome{
		Action:      ActionFlagged,
		Transaction: created,
		Message:     "Potential duplicate of manual entry - requires review",
	}, nil
}

// create imports a genuinely new transaction. A recurring-income match
// annotates the description and pre-applies the definition's envelope
// splits, but leaves the transaction unapproved so a human confirms the
// allocation before balances move.
func (p *Processor) create(ctx context.Context, rec Record, userID, accountID int64) (*Outcome, error) {
	defs, err := p.ledger.RecurringIncomesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading recurring incomes for user %d: %w", userID, err)
	}
	def := recurring.Match(defs, recurring.Income{
		Amount:   rec.Amount,
		Merchant: rec.Merchant,
		Memo:     rec.Memo,
	})

	description := rec.Description
	approved := true
	if def != nil {
		description = fmt.Sprintf("Auto-matched: %s", def.Name)
		approved = false // held so the split allocation can be confirmed
	}

	fingerprint := match.Fingerprint(rec.Amount, rec.Date, rec.Merchant)
	created, err := p.ledger.CreateTransaction(ctx, &storage.Transaction{
		UserID:            userID,
		AccountID:         accountID,
		Merchant:          rec.Merchant,
		Description:       description,
		Amount:            rec.Amount,
		Date:              rec.Date,
		IsApproved:        approved,
		SourceType:        storage.SourceBankSync,
		DuplicateStatus:   storage.DuplicateNone,
		BankTransactionID: &rec.BankTransactionID,
		BankHash:          &fingerprint,
	})
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}

	message := fmt.Sprintf("New transaction imported from %s", rec.Merchant)
	if def != nil {
		if err := p.applySplits(ctx, created, def); err != nil {
			// A partial split write is a data-integrity defect; fail the
			// whole record so the caller can retry it.
			return nil, err
		}
		message = fmt.Sprintf("Imported and matched with recurring income: %s", def.Name)
		p.logger.Info("applied recurring income splits",
			"transaction_id", created.ID, "recurring_income", def.Name)
	}

	return &Outcome{
		Action:      ActionCreated,
		Transaction: created,
		Message:     message,
	}, nil
}

// applySplits creates one allocation per configured split, then routes any
// remainder above a cent to the surplus envelope, rounded to two decimals.
func (p *Processor) applySplits(ctx context.Context, tx *storage.Transaction, def *storage.RecurringIncome) error {
	if len(def.Splits) == 0 {
		return nil
	}

	total := decimal.Zero
	for _, split := range def.Splits {
		if err := p.ledger.CreateSplit(ctx, tx.ID, split.EnvelopeID, split.Amount); err != nil {
			return fmt.Errorf("creating split for envelope %d: %w", split.EnvelopeID, err)
		}
		if amt, err := decimal.NewFromString(split.Amount); err == nil {
			total = total.Add(amt)
		}
	}

	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		return fmt.Errorf("transaction %d amount %q: %w", tx.ID, tx.Amount, err)
	}
	surplus := amount.Sub(total)
	if surplus.GreaterThan(surplusEpsilon) && def.SurplusEnvelopeID != nil {
		if err := p.ledger.CreateSplit(ctx, tx.ID, *def.SurplusEnvelopeID, surplus.StringFixed(2)); err != nil {
			return fmt.Errorf("creating surplus split for envelope %d: %w", *def.SurplusEnvelopeID, err)
		}
	}
	return nil
}

// Approve applies a transaction's balance side effects and marks it
// approved: every envelope allocation is added to its envelope's balance
// and the transaction total to the account balance. Approving an
// already-approved transaction is a no-op, so the effects apply exactly
// once. The approved flag is only written after every balance write
// succeeded.
func (p *Processor) Approve(ctx context.Context, transactionID int64) error {
	tx, err := p.ledger.Transaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.IsApproved {
		return nil
	}

	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		return fmt.Errorf("transaction %d amount %q: %w", tx.ID, tx.Amount, err)
	}

	splits, err := p.ledger.SplitsForTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("loading splits for transaction %d: %w", transactionID, err)
	}
	for _, split := range splits {
		env, err := p.ledger.Envelope(ctx, split.EnvelopeID)
		if err != nil {
			return fmt.Errorf("loading envelope %d: %w", split.EnvelopeID, err)
		}
		balance, err := decimal.NewFromString(env.CurrentBalance)
		if err != nil {
			return fmt.Errorf("envelope %d balance %q: %w", env.ID, env.CurrentBalance, err)
		}
		allocated, err := decimal.NewFromString(split.Amount)
		if err != nil {
			return fmt.Errorf("split %d amount %q: %w", split.ID, split.Amount, err)
		}
		newBalance := balance.Add(allocated).StringFixed(2)
		if err := p.ledger.UpdateEnvelopeBalance(ctx, env.ID, newBalance); err != nil {
			return fmt.Errorf("updating envelope %d balance: %w", env.ID, err)
		}
	}

	acct, err := p.ledger.Account(ctx, tx.AccountID)
	if err != nil {
		return fmt.Errorf("loading account %d: %w", tx.AccountID, err)
	}
	balance, err := decimal.NewFromString(acct.Balance)
	if err != nil {
		return fmt.Errorf("account %d balance %q: %w", acct.ID, acct.Balance, err)
	}
	if err := p.ledger.UpdateAccountBalance(ctx, acct.ID, balance.Add(amount).StringFixed(2)); err != nil {
		return fmt.Errorf("updating account %d balance: %w", acct.ID, err)
	}

	approved := true
	if err := p.ledger.UpdateTransaction(ctx, transactionID, storage.TransactionUpdate{IsApproved: &approved}); err != nil {
		return fmt.Errorf("marking transaction %d approved: %w", transactionID, err)
	}
	return nil
}

// BackfillFingerprints computes and stores fingerprints for a user's legacy
// transactions that predate duplicate detection, defaulting their source to
// manual so future feed syncs can exact-match them. Returns the number of
// transactions updated.
func (p *Processor) BackfillFingerprints(ctx context.Context, userID int64) (int, error) {
	transactions, err := p.ledger.TransactionsForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("loading transactions for user %d: %w", userID, err)
	}

	updated := 0
	for _, tx := range transactions {
		if tx.BankHash != nil && *tx.BankHash != "" {
			continue
		}
		fingerprint := match.Fingerprint(tx.Amount, tx.Date, tx.Merchant)
		update := storage.TransactionUpdate{BankHash: &fingerprint}
		if tx.SourceType == "" {
			manual := storage.SourceManual
			update.SourceType = &manual
		}
		if err := p.ledger.UpdateTransaction(ctx, tx.ID, update); err != nil {
			return updated, fmt.Errorf("backfilling transaction %d: %w", tx.ID, err)
		}
		updated++
	}
	return updated, nil
}
