package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger provides Postgres access for the budgeting ledger via a
// pgx connection pool. Schema setup is owned by the deployment (the
// expected tables mirror the sqlite migrations with SERIAL keys).
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// Compile-time check that PostgresLedger implements Ledger.
var _ Ledger = (*PostgresLedger)(nil)

// NewPostgresLedger connects to the database and verifies the connection.
func NewPostgresLedger(ctx context.Context, url string) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresLedger{pool: pool}, nil
}

// Close releases the connection pool.
func (p *PostgresLedger) Close() error {
	p.pool.Close()
	return nil
}

const pgTransactionColumns = `id, user_id, account_id, merchant, COALESCE(description, ''), amount, date,
	is_approved, source_type, duplicate_status, duplicate_of_id,
	bank_transaction_id, bank_hash, bank_reference, bank_memo, created_at`

func scanPgTransaction(row pgx.Row) (*Transaction, error) {
	tx := &Transaction{}
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.AccountID,
		&tx.Merchant,
		&tx.Description,
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
	return tx, nil
}

func (p *PostgresLedger) TransactionsForUser(ctx context.Context, userID int64) ([]*Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE user_id = $1 ORDER BY id`, pgTransactionColumns)

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		tx, err := scanPgTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (p *PostgresLedger) Transaction(ctx context.Context, id int64) (*Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, pgTransactionColumns)

	tx, err := scanPgTransaction(p.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return tx, err
}

func (p *PostgresLedger) CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	query := fmt.Sprintf(`
	INSERT INTO transactions
	(user_id, account_id, merchant, description, amount, date,
	 is_approved, source_type, duplicate_status, duplicate_of_id,
	 bank_transaction_id, bank_hash, bank_reference, bank_memo)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	RETURNING %s`, pgTransactionColumns)

	return scanPgTransaction(p.pool.QueryRow(ctx, query,
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
	))
}

func (p *PostgresLedger) UpdateTransaction(ctx context.Context, id int64, update TransactionUpdate) error {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
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
	query := fmt.Sprintf(`UPDATE transactions SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return nil
}

func (p *PostgresLedger) CreateSplit(ctx context.Context, transactionID, envelopeID int64, amount string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO transaction_envelopes (transaction_id, envelope_id, amount) VALUES ($1, $2, $3)`,
		transactionID, envelopeID, amount,
	)
	return err
}

func (p *PostgresLedger) SplitsForTransaction(ctx context.Context, transactionID int64) ([]*TransactionEnvelope, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, transaction_id, envelope_id, amount FROM transaction_envelopes WHERE transaction_id = $1 ORDER BY id`,
		transactionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (p *PostgresLedger) DeleteSplits(ctx context.Context, transactionID int64) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM transaction_envelopes WHERE transaction_id = $1`, transactionID)
	return err
}

func (p *PostgresLedger) Envelope(ctx context.Context, id int64) (*Envelope, error) {
	query := `SELECT id, user_id, name, current_balance, budgeted_amount, category_id, is_active, is_monitored
	FROM envelopes WHERE id = $1`

	env := &Envelope{}
	err := p.pool.QueryRow(ctx, query, id).Scan(
		&env.ID, &env.UserID, &env.Name, &env.CurrentBalance,
		&env.BudgetedAmount, &env.CategoryID, &env.IsActive, &env.IsMonitored,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("envelope %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (p *PostgresLedger) EnvelopesForUser(ctx context.Context, userID int64) ([]*Envelope, error) {
	query := `SELECT id, user_id, name, current_balance, budgeted_amount, category_id, is_active, is_monitored
	FROM envelopes WHERE user_id = $1 ORDER BY id`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (p *PostgresLedger) CreateEnvelope(ctx context.Context, env *Envelope) (*Envelope, error) {
	query := `
	INSERT INTO envelopes (user_id, name, current_balance, budgeted_amount, category_id, is_active, is_monitored)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id, user_id, name, current_balance, budgeted_amount, category_id, is_active, is_monitored`

	created := &Envelope{}
	err := p.pool.QueryRow(ctx, query,
		env.UserID, env.Name, env.CurrentBalance, env.BudgetedAmount,
		env.CategoryID, env.IsActive, env.IsMonitored,
	).Scan(
		&created.ID, &created.UserID, &created.Name, &created.CurrentBalance,
		&created.BudgetedAmount, &created.CategoryID, &created.IsActive, &created.IsMonitored,
	)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (p *PostgresLedger) UpdateEnvelopeBalance(ctx context.Context, id int64, balance string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE envelopes SET current_balance = $1 WHERE id = $2`, balance, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("envelope %d: %w", id, ErrNotFound)
	}
	return nil
}

func (p *PostgresLedger) Account(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT id, user_id, name, COALESCE(type, ''), balance FROM accounts WHERE id = $1`

	acct := &Account{}
	err := p.pool.QueryRow(ctx, query, id).Scan(&acct.ID, &acct.UserID, &acct.Name, &acct.Type, &acct.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (p *PostgresLedger) AccountsForUser(ctx context.Context, userID int64) ([]*Account, error) {
	query := `SELECT id, user_id, name, COALESCE(type, ''), balance FROM accounts WHERE user_id = $1 ORDER BY id`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (p *PostgresLedger) CreateAccount(ctx context.Context, acct *Account) (*Account, error) {
	query := `
	INSERT INTO accounts (user_id, name, type, balance)
	VALUES ($1, $2, $3, $4)
	RETURNING id, user_id, name, COALESCE(type, ''), balance`

	created := &Account{}
	err := p.pool.QueryRow(ctx, query, acct.UserID, acct.Name, acct.Type, acct.Balance).
		Scan(&created.ID, &created.UserID, &created.Name, &created.Type, &created.Balance)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (p *PostgresLedger) UpdateAccountBalance(ctx context.Context, id int64, balance string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE accounts SET balance = $1 WHERE id = $2`, balance, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

func (p *PostgresLedger) RecurringIncomesForUser(ctx context.Context, userID int64) ([]*RecurringIncome, error) {
	query := `SELECT id, user_id, name, amount, splits_json, surplus_envelope_id
	FROM recurring_incomes WHERE user_id = $1 ORDER BY id`

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (p *PostgresLedger) CreateRecurringIncome(ctx context.Context, ri *RecurringIncome) (*RecurringIncome, error) {
	splitsJSON, err := json.Marshal(ri.Splits)
	if err != nil {
		return nil, err
	}

	created := *ri
	err = p.pool.QueryRow(ctx,
		`INSERT INTO recurring_incomes (user_id, name, amount, splits_json, surplus_envelope_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		ri.UserID, ri.Name, ri.Amount, string(splitsJSON), ri.SurplusEnvelopeID,
	).Scan(&created.ID)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (p *PostgresLedger) SaveImportRun(ctx context.Context, run *ImportRun) error {
	query := `
	INSERT INTO import_runs
	(id, user_id, account_id, started_at, completed_at, found, created, merged, flagged, failed, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE SET
		completed_at = EXCLUDED.completed_at,
		found = EXCLUDED.found,
		created = EXCLUDED.created,
		merged = EXCLUDED.merged,
		flagged = EXCLUDED.flagged,
		failed = EXCLUDED.failed,
		status = EXCLUDED.status
	`

	_, err := p.pool.Exec(ctx, query,
		run.ID, run.UserID, run.AccountID, run.StartedAt, run.CompletedAt,
		run.Found, run.Created, run.Merged, run.Flagged, run.Failed, run.Status,
	)
	return err
}

func (p *PostgresLedger) ImportRuns(ctx context.Context, userID int64, limit int) ([]*ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, user_id, account_id, started_at, completed_at, found, created, merged, flagged, failed, status
	FROM import_runs WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`

	rows, err := p.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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
