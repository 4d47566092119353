// Package service hosts the long-lived import scheduler: an explicit
// object constructed with its storage, feed and logging dependencies, in
// place of ambient interval timers and cached credentials.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/budgetnz/envelope-sync-backend/internal/adapters/feed"
	"github.com/budgetnz/envelope-sync-backend/internal/application/importer"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// AccountBinding ties a ledger account to its feed-side account.
type AccountBinding struct {
	UserID         int64
	AccountID      int64
	FeedAccountRef string
}

// Config holds scheduler settings.
type Config struct {
	// Interval between import cycles. Zero disables the periodic loop;
	// ImportAccount can still be called directly.
	Interval time.Duration

	// MaxParallelAccounts caps concurrent per-account imports within a
	// cycle. Accounts never overlap candidate sets, so they may run in
	// parallel; records within one account are strictly sequential.
	MaxParallelAccounts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:            15 * time.Minute,
		MaxParallelAccounts: 4,
	}
}

// ImportService periodically pulls feed records for every bound account and
// runs them through the processor.
type ImportService struct {
	ledger    storage.Ledger
	feed      feed.Client
	processor *importer.Processor
	logger    *slog.Logger
	config    Config
	accounts  []AccountBinding

	// One mutex per (user, account) pair serializes imports for that
	// account across cycles and ad-hoc triggers.
	accountLocks map[string]*sync.Mutex
	locksMu      sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewImportService creates a stopped import service.
func NewImportService(
	ledger storage.Ledger,
	feedClient feed.Client,
	processor *importer.Processor,
	accounts []AccountBinding,
	config Config,
	logger *slog.Logger,
) *ImportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{
		ledger:       ledger,
		feed:         feedClient,
		processor:    processor,
		logger:       logger,
		config:       config,
		accounts:     accounts,
		accountLocks: make(map[string]*sync.Mutex),
	}
}

// Start launches the periodic import loop. Returns an error if the service
// is already running or no interval is configured.
func (s *ImportService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("import service is already running")
	}
	if s.config.Interval <= 0 {
		return errors.New("import service has no interval configured")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.loop(ctx)
	s.logger.Info("import service started", "interval", s.config.Interval, "accounts", len(s.accounts))
	return nil
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (s *ImportService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("import service stopped")
}

func (s *ImportService) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle imports every bound account once. Accounts run in parallel up to
// the configured limit; a failing account is logged and skipped until the
// next cycle.
func (s *ImportService) RunCycle(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	if s.config.MaxParallelAccounts > 0 {
		g.SetLimit(s.config.MaxParallelAccounts)
	}

	for _, binding := range s.accounts {
		binding := binding
		g.Go(func() error {
			if _, err := s.ImportAccount(ctx, binding); err != nil {
				s.logger.Error("account import failed",
					"user_id", binding.UserID, "account_id", binding.AccountID, "error", err)
			}
			// Per-account failures never abort the cycle.
			return nil
		})
	}
	_ = g.Wait()
}

// ImportAccount fetches the feed for one account and processes each record
// in order. Records are independent: one bad record is counted and logged,
// the rest of the batch continues. The returned run summarizes the batch.
func (s *ImportService) ImportAccount(ctx context.Context, binding AccountBinding) (*storage.ImportRun, error) {
	lock := s.lockFor(binding)
	lock.Lock()
	defer lock.Unlock()

	records, err := s.feed.Transactions(ctx, binding.FeedAccountRef)
	if err != nil {
		// Abandon this account's import; the next cycle retries.
		return nil, fmt.Errorf("fetching feed for account %d: %w", binding.AccountID, err)
	}

	run := &storage.ImportRun{
		ID:        uuid.NewString(),
		UserID:    binding.UserID,
		AccountID: binding.AccountID,
		StartedAt: time.Now().UTC(),
		Found:     len(records),
		Status:    "running",
	}
	if err := s.ledger.SaveImportRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording import run: %w", err)
	}

	for _, record := range records {
		outcome, err := s.processor.Process(ctx, importer.Record{
			Amount:            record.Amount,
			Date:              record.Date,
			Merchant:          record.Merchant,
			Description:       record.Description,
			Memo:              record.Memo,
			BankTransactionID: record.ID,
		}, binding.UserID, binding.AccountID)
		if err != nil {
			run.Failed++
			s.logger.Warn("skipping bank record",
				"bank_transaction_id", record.ID, "merchant", record.Merchant, "error", err)
			continue
		}

		switch outcome.Action {
		case importer.ActionCreated:
			run.Created++
		case importer.ActionMerged:
			run.Merged++
		case importer.ActionFlagged:
			run.Flagged++
		}
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = "completed"
	if err := s.ledger.SaveImportRun(ctx, run); err != nil {
		return nil, fmt.Errorf("completing import run: %w", err)
	}

	s.logger.Info("account import completed",
		"account_id", binding.AccountID,
		"found", run.Found, "created", run.Created,
		"merged", run.Merged, "flagged", run.Flagged, "failed", run.Failed)
	return run, nil
}

func (s *ImportService) lockFor(binding AccountBinding) *sync.Mutex {
	key := fmt.Sprintf("%d/%d", binding.UserID, binding.AccountID)

	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.accountLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[key] = lock
	}
	return lock
}
