package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger provides SQLite database access for the budgeting ledger.
// It implements the Ledger interface.
type SQLiteLedger struct {
	db *sql.DB
}

// Compile-time check that SQLiteLedger implements Ledger.
var _ Ledger = (*SQLiteLedger)(nil)

// NewSQLiteLedger opens (or creates) the database at dbPath and runs all
// pending migrations.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteLedger{db: db}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

const transactionColumns = `id, user_id, account_id, merchant, description, amount, date,
	is_approved, source_type, duplicate_status, duplicate_of_id,
	bank_transaction_id, bank_hash, bank_reference, bank_memo, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	tx := &Transaction{}
	var description sql.NullString
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.AccountID,
		&tx.Merchant,
		&description,
		&tx.Amount,
		&tx.Date,
		&tx.IsApproved,
		&tx.SourceType,
		&tx.DuplicateStatus,
		&tx.DuplicateOfID,
		&tx.BankTransactionID,
		&tx.BankHash,
		&tx.BankReference,
		&tx.BankMemo,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Description = description.String
	return tx, nil
}

func (s *SQLiteLedger) TransactionsForUser(ctx context.Context, userID int64) ([]*Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE user_id = ? ORDER BY id`, transactionColumns)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *SQLiteLedger) Transaction(ctx context.Context, id int64) (*Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = ?`, transactionColumns)

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return tx, err
}

func (s *SQLiteLedger) CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	query := `
	INSERT INTO transactions
	(user_id, account_id, merchant, description, amount, date,
	 is_approved, source_type, duplicate_status, duplicate_of_id,
	 bank_transaction_id, bank_hash, bank_reference, bank_memo)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		tx.UserID,
		tx.AccountID,
		tx.Merchant,
		tx.Description,
		tx.Amount,
		tx.Date,
		tx.IsApproved,
		tx.SourceType,
		tx.DuplicateStatus,
		tx.DuplicateOfID,
		tx.BankTransactionID,
		tx.BankHash,
		tx.BankReference,
		tx.BankMemo,
	)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Transaction(ctx, id)
}

func (s *SQLiteLedger) UpdateTransaction(ctx context.Context, id int64, update TransactionUpdate) error {
	var sets []string
	var args []any

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.Merchant != nil {
		add("merchant", *update.Merchant)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.Amount != nil {
		add("amount", *update.Amount)
	}
	if update.Date != nil {
		add("date", *update.Date)
	}
	if update.IsApproved != nil {
		add("is_approved", *update.IsApproved)
	}
	if update.SourceType != nil {
		add("source_type", string(*update.SourceType))
	}
	if update.DuplicateStatus != nil {
		add("duplicate_status", string(*update.DuplicateStatus))
	}
	if update.DuplicateOfID != nil {
		add("duplicate_of_id", *update.DuplicateOfID)
	}
	if update.BankTransactionID != nil {
		add("bank_transaction_id", *update.BankTransactionID)
	}
	if update.BankHash != nil {
		add("bank_hash", *update.BankHash)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE transactions SET %s WHERE id = ?`, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteLedger) CreateSplit(ctx context.Context, transactionID, envelopeID int64, amount string) error {
	query := `INSERT INTO transaction_envelopes (transaction_id, envelope_id, amount) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, transactionID, envelopeID, amount)
	return err
}

func (s *SQLiteLedger) SplitsForTransaction(ctx context.Context, transactionID int64) ([]*TransactionEnvelope, error) {
	query := `SELECT id, transaction_id, envelope_id, amount FROM transaction_envelopes WHERE transaction_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*TransactionEnvelope
	for rows.Next() {
		te := &TransactionEnvelope{}
		if err := rows.Scan(&te.ID, &te.TransactionID, &te.EnvelopeID, &te.Amount); err != nil {
			return nil, err
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

func (s *SQLiteLedger) DeleteSplits(ctx context.Context, transactionID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transaction_envelopes WHERE transaction_id = ?`, transactionID)
	return err
}

func (s *SQLiteLedger) Envelope(ctx context.Context, id int64) (*Envelope, error) {
	query := `SELECT id, user_id, name, current_balance, budgeted_amount, category_id, is_active, is_monitored
	FROM envelopes WHERE id = ?`

	env := &Envelope{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&env.ID, &env.UserID, &env.Name, &env.CurrentBalance,
		&env.BudgetedAmount, &env.CategoryID, &env.IsActive, &env.IsMonitored,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("envelope %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (s *SQLiteLedger) EnvelopesForUser(ctx context.Context, userID int64) ([]*Envelope, error) {
	query := `SELECT id, user_id, name, current_balance, budgeted_amount, category_id, is_active, is_monitored
	FROM envelopes WHERE user_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Envelope
	for rows.Next() {
		env := &Envelope{}
		if err := rows.Scan(
			&env.ID, &env.UserID, &env.Name, &env.CurrentBalance,
			&env.BudgetedAmount, &env.CategoryID, &env.IsActive, &env.IsMonitored,
		); err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *SQLiteLedger) CreateEnvelope(ctx context.Context, env *Envelope) (*Envelope, error) {
	query := `INSERT INTO envelopes (user_id, name, current_balance, budgeted_amount, category_id, is_active, is_monitored)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, query,
		env.UserID, env.Name, env.CurrentBalance, env.BudgetedAmount,
		env.CategoryID, env.IsActive, env.IsMonitored,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Envelope(ctx, id)
}

func (s *SQLiteLedger) UpdateEnvelopeBalance(ctx context.Context, id int64, balance string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE envelopes SET current_balance = ? WHERE id = ?`, balance, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("envelope %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteLedger) Account(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT id, user_id, name, type, balance FROM accounts WHERE id = ?`

	acct := &Account{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&acct.ID, &acct.UserID, &acct.Name, &acct.Type, &acct.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *SQLiteLedger) AccountsForUser(ctx context.Context, userID int64) ([]*Account, error) {
	query := `SELECT id, user_id, name, type, balance FROM accounts WHERE user_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Account
	for rows.Next() {
		acct := &Account{}
		if err := rows.Scan(&acct.ID, &acct.UserID, &acct.Name, &acct.Type, &acct.Balance); err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (s *SQLiteLedger) CreateAccount(ctx context.Context, acct *Account) (*Account, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, name, type, balance) VALUES (?, ?, ?, ?)`,
		acct.UserID, acct.Name, acct.Type, acct.Balance,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Account(ctx, id)
}

func (s *SQLiteLedger) UpdateAccountBalance(ctx context.Context, id int64, balance string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, balance, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

// RecurringIncomesForUser returns definitions ordered by id. The matcher is
// first-fit, so the ORDER BY is part of the contract.
func (s *SQLiteLedger) RecurringIncomesForUser(ctx context.Context, userID int64) ([]*RecurringIncome, error) {
	query := `SELECT id, user_id, name, amount, splits_json, surplus_envelope_id
	FROM recurring_incomes WHERE user_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*RecurringIncome
	for rows.Next() {
		ri := &RecurringIncome{}
		var splitsJSON string
		if err := rows.Scan(&ri.ID, &ri.UserID, &ri.Name, &ri.Amount, &splitsJSON, &ri.SurplusEnvelopeID); err != nil {
			return nil, err
		}
		if splitsJSON != "" {
			if err := json.Unmarshal([]byte(splitsJSON), &ri.Splits); err != nil {
				return nil, fmt.Errorf("recurring income %d splits: %w", ri.ID, err)
			}
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

func (s *SQLiteLedger) CreateRecurringIncome(ctx context.Context, ri *RecurringIncome) (*RecurringIncome, error) {
	splitsJSON, err := json.Marshal(ri.Splits)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recurring_incomes (user_id, name, amount, splits_json, surplus_envelope_id) VALUES (?, ?, ?, ?, ?)`,
		ri.UserID, ri.Name, ri.Amount, string(splitsJSON), ri.SurplusEnvelopeID,
	)
	if err != nil {
		return nil, err
	}

	created := *ri
	created.ID, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *SQLiteLedger) SaveImportRun(ctx context.Context, run *ImportRun) error {
	query := `
	INSERT OR REPLACE INTO import_runs
	(id, user_id, account_id, started_at, completed_at, found, created, merged, flagged, failed, status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.UserID, run.AccountID, run.StartedAt, run.CompletedAt,
		run.Found, run.Created, run.Merged, run.Flagged, run.Failed, run.Status,
	)
	return err
}

func (s *SQLiteLedger) ImportRuns(ctx context.Context, userID int64, limit int) ([]*ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, account_id, started_at, completed_at, found, created, merged, flagged, failed, status
	FROM import_runs WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*ImportRun
	for rows.Next() {
		run := &ImportRun{}
		if err := rows.Scan(
			&run.ID, &run.UserID, &run.AccountID, &run.StartedAt, &run.CompletedAt,
			&run.Found, &run.Created, &run.Merged, &run.Flagged, &run.Failed, &run.Status,
		); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
