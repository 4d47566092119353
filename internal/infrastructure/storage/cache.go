package storage

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedLedger is a read-through cache over another Ledger. The detector
// re-reads the full user transaction set on every incoming record, so
// batches hit the same rows repeatedly; caching that read (and the hot
// envelope/account lookups) keeps imports cheap without touching the
// backend's semantics. Writes invalidate the affected keys.
type CachedLedger struct {
	Ledger
	cache *ristretto.Cache
}

var _ Ledger = (*CachedLedger)(nil)

// NewCachedLedger wraps inner with a ristretto cache.
func NewCachedLedger(inner Ledger) (*CachedLedger, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000, // number of keys to track frequency of
		MaxCost:     10000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("initializing ledger cache: %w", err)
	}
	return &CachedLedger{Ledger: inner, cache: cache}, nil
}

// Close drops the cache and closes the inner ledger.
func (c *CachedLedger) Close() error {
	c.cache.Close()
	return c.Ledger.Close()
}

func userTxKey(userID int64) string { return fmt.Sprintf("tx/user/%d", userID) }
func envelopeKey(id int64) string   { return fmt.Sprintf("envelope/%d", id) }
func accountKey(id int64) string    { return fmt.Sprintf("account/%d", id) }

func (c *CachedLedger) TransactionsForUser(ctx context.Context, userID int64) ([]*Transaction, error) {
	if cached, ok := c.cache.Get(userTxKey(userID)); ok {
		if txs, ok := cached.([]*Transaction); ok {
			return txs, nil
		}
	}

	txs, err := c.Ledger.TransactionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(userTxKey(userID), txs, 1)
	return txs, nil
}

func (c *CachedLedger) CreateTransaction(ctx context.Context, tx *Transaction) (*Transaction, error) {
	created, err := c.Ledger.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	c.cache.Del(userTxKey(created.UserID))
	return created, nil
}

func (c *CachedLedger) UpdateTransaction(ctx context.Context, id int64, update TransactionUpdate) error {
	tx, err := c.Ledger.Transaction(ctx, id)
	if err != nil {
		return err
	}
	if err := c.Ledger.UpdateTransaction(ctx, id, update); err != nil {
		return err
	}
	c.cache.Del(userTxKey(tx.UserID))
	return nil
}

func (c *CachedLedger) Envelope(ctx context.Context, id int64) (*Envelope, error) {
	if cached, ok := c.cache.Get(envelopeKey(id)); ok {
		if env, ok := cached.(*Envelope); ok {
			return env, nil
		}
	}

	env, err := c.Ledger.Envelope(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(envelopeKey(id), env, 1)
	return env, nil
}

func (c *CachedLedger) UpdateEnvelopeBalance(ctx context.Context, id int64, balance string) error {
	if err := c.Ledger.UpdateEnvelopeBalance(ctx, id, balance); err != nil {
		return err
	}
	c.cache.Del(envelopeKey(id))
	return nil
}

func (c *CachedLedger) Account(ctx context.Context, id int64) (*Account, error) {
	if cached, ok := c.cache.Get(accountKey(id)); ok {
		if acct, ok := cached.(*Account); ok {
			return acct, nil
		}
	}

	acct, err := c.Ledger.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(accountKey(id), acct, 1)
	return acct, nil
}

func (c *CachedLedger) UpdateAccountBalance(ctx context.Context, id int64, balance string) error {
	if err := c.Ledger.UpdateAccountBalance(ctx, id, balance); err != nil {
		return err
	}
	c.cache.Del(accountKey(id))
	return nil
}
