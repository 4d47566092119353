package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryLedger is an in-memory implementation of Ledger. It backs the
// default development configuration and doubles as the test double: data
// lives in maps, and error-injection fields let tests exercise failure
// paths.
type MemoryLedger struct {
	mu sync.RWMutex

	transactions     map[int64]*Transaction
	splits           map[int64][]*TransactionEnvelope // keyed by transaction id
	envelopes        map[int64]*Envelope
	accounts         map[int64]*Account
	recurringIncomes map[int64]*RecurringIncome
	recurringOrder   []int64
	importRuns       []*ImportRun
	nextID           int64

	// Error injection for testing error paths.
	CreateTransactionErr error
	UpdateTransactionErr error
	CreateSplitErr       error
	UpdateEnvelopeErr    error
	UpdateAccountErr     error
}

// Compile-time check that MemoryLedger implements Ledger.
var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		transactions:     make(map[int64]*Transaction),
		splits:           make(map[int64][]*TransactionEnvelope),
		envelopes:        make(map[int64]*Envelope),
		accounts:         make(map[int64]*Account),
		recurringIncomes: make(map[int64]*RecurringIncome),
		nextID:           1,
	}
}

// Close does nothing for the in-memory ledger.
func (m *MemoryLedger) Close() error { return nil }

func (m *MemoryLedger) allocID() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func copyTransaction(tx *Transaction) *Transaction {
	c := *tx
	return &c
}

// TransactionsForUser returns the user's transactions ordered by id, which
// for this backend is insertion order.
func (m *MemoryLedger) TransactionsForUser(_ context.Context, userID int64) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transaction
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			out = append(out, copyTransaction(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryLedger) Transaction(_ context.Context, id int64) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return copyTransaction(tx), nil
}

func (m *MemoryLedger) CreateTransaction(_ context.Context, tx *Transaction) (*Transaction, error) {
	if m.CreateTransactionErr != nil {
		return nil, m.CreateTransactionErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyTransaction(tx)
	stored.ID = m.allocID()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.transactions[stored.ID] = stored
	return copyTransaction(stored), nil
}

func (m *MemoryLedger) UpdateTransaction(_ context.Context, id int64, update TransactionUpdate) error {
	if m.UpdateTransactionErr != nil {
		return m.UpdateTransactionErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}

	// Copy-on-write: patch a copy, then swap it in as one assignment.
	next := copyTransaction(tx)
	if update.Merchant != nil {
		next.Merchant = *update.Merchant
	}
	if update.Description != nil {
		next.Description = *update.Description
	}
	if update.Amount != nil {
		next.Amount = *update.Amount
	}
	if update.Date != nil {
		next.Date = *update.Date
	}
	if update.IsApproved != nil {
		next.IsApproved = *update.IsApproved
	}
	if update.SourceType != nil {
		next.SourceType = *update.SourceType
	}
	if update.DuplicateStatus != nil {
		next.DuplicateStatus = *update.DuplicateStatus
	}
	if update.DuplicateOfID != nil {
		next.DuplicateOfID = update.DuplicateOfID
	}
	if update.BankTransactionID != nil {
		next.BankTransactionID = update.BankTransactionID
	}
	if update.BankHash != nil {
		next.BankHash = update.BankHash
	}
	m.transactions[id] = next
	return nil
}

func (m *MemoryLedger) CreateSplit(_ context.Context, transactionID, envelopeID int64, amount string) error {
	if m.CreateSplitErr != nil {
		return m.CreateSplitErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[transactionID]; !ok {
		return fmt.Errorf("transaction %d: %w", transactionID, ErrNotFound)
	}
	m.splits[transactionID] = append(m.splits[transactionID], &TransactionEnvelope{
		ID:            m.allocID(),
		TransactionID: transactionID,
		EnvelopeID:    envelopeID,
		Amount:        amount,
	})
	return nil
}

func (m *MemoryLedger) SplitsForTransaction(_ context.Context, transactionID int64) ([]*TransactionEnvelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	splits := m.splits[transactionID]
	out := make([]*TransactionEnvelope, 0, len(splits))
	for _, s := range splits {
		c := *s
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryLedger) DeleteSplits(_ context.Context, transactionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.splits, transactionID)
	return nil
}

func (m *MemoryLedger) Envelope(_ context.Context, id int64) (*Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	env, ok := m.envelopes[id]
	if !ok {
		return nil, fmt.Errorf("envelope %d: %w", id, ErrNotFound)
	}
	c := *env
	return &c, nil
}

func (m *MemoryLedger) EnvelopesForUser(_ context.Context, userID int64) ([]*Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Envelope
	for _, env := range m.envelopes {
		if env.UserID == userID {
			c := *env
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryLedger) CreateEnvelope(_ context.Context, env *Envelope) (*Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *env
	stored.ID = m.allocID()
	m.envelopes[stored.ID] = &stored
	c := stored
	return &c, nil
}

func (m *MemoryLedger) UpdateEnvelopeBalance(_ context.Context, id int64, balance string) error {
	if m.UpdateEnvelopeErr != nil {
		return m.UpdateEnvelopeErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	env, ok := m.envelopes[id]
	if !ok {
		return fmt.Errorf("envelope %d: %w", id, ErrNotFound)
	}
	next := *env
	next.CurrentBalance = balance
	m.envelopes[id] = &next
	return nil
}

func (m *MemoryLedger) Account(_ context.Context, id int64) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	c := *acct
	return &c, nil
}

func (m *MemoryLedger) AccountsForUser(_ context.Context, userID int64) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Account
	for _, acct := range m.accounts {
		if acct.UserID == userID {
			c := *acct
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryLedger) CreateAccount(_ context.Context, acct *Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *acct
	stored.ID = m.allocID()
	m.accounts[stored.ID] = &stored
	c := stored
	return &c, nil
}

func (m *MemoryLedger) UpdateAccountBalance(_ context.Context, id int64, balance string) error {
	if m.UpdateAccountErr != nil {
		return m.UpdateAccountErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	next := *acct
	next.Balance = balance
	m.accounts[id] = &next
	return nil
}

// RecurringIncomesForUser returns definitions in creation order.
func (m *MemoryLedger) RecurringIncomesForUser(_ context.Context, userID int64) ([]*RecurringIncome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*RecurringIncome
	for _, id := range m.recurringOrder {
		ri := m.recurringIncomes[id]
		if ri.UserID != userID {
			continue
		}
		c := *ri
		c.Splits = append([]IncomeSplit(nil), ri.Splits...)
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryLedger) CreateRecurringIncome(_ context.Context, ri *RecurringIncome) (*RecurringIncome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *ri
	stored.ID = m.allocID()
	stored.Splits = append([]IncomeSplit(nil), ri.Splits...)
	m.recurringIncomes[stored.ID] = &stored
	m.recurringOrder = append(m.recurringOrder, stored.ID)
	c := stored
	c.Splits = append([]IncomeSplit(nil), stored.Splits...)
	return &c, nil
}

func (m *MemoryLedger) SaveImportRun(_ context.Context, run *ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *run
	for i, existing := range m.importRuns {
		if existing.ID == run.ID {
			m.importRuns[i] = &c
			return nil
		}
	}
	m.importRuns = append(m.importRuns, &c)
	return nil
}

func (m *MemoryLedger) ImportRuns(_ context.Context, userID int64, limit int) ([]*ImportRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ImportRun
	for i := len(m.importRuns) - 1; i >= 0; i-- {
		if m.importRuns[i].UserID != userID {
			continue
		}
		c := *m.importRuns[i]
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
