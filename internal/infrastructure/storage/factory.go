package storage

import (
	"context"
	"fmt"

	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/config"
)

// Open builds the Ledger selected by configuration. The rest of the system
// only ever sees the interface, so backends are interchangeable at startup.
func Open(ctx context.Context, cfg config.StorageConfig) (Ledger, error) {
	var (
		ledger Ledger
		err    error
	)

	switch cfg.Driver {
	case "", "memory":
		ledger = NewMemoryLedger()
	case "sqlite":
		ledger, err = NewSQLiteLedger(cfg.DatabasePath)
	case "postgres":
		ledger, err = NewPostgresLedger(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s ledger: %w", cfg.Driver, err)
	}

	if cfg.CacheEnabled {
		return NewCachedLedger(ledger)
	}
	return ledger, nil
}
