// Command import runs a single import cycle and exits. Useful for cron-style
// deployments and for backfilling after downtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/budgetnz/envelope-sync-backend/internal/adapters/feed"
	"github.com/budgetnz/envelope-sync-backend/internal/application/importer"
	"github.com/budgetnz/envelope-sync-backend/internal/application/service"
	"github.com/budgetnz/envelope-sync-backend/internal/domain/match"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/config"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/logging"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	accountID := flag.Int64("account", 0, "import only this account id (0 = all bound accounts)")
	backfill := flag.Bool("backfill-hashes", false, "fill in missing transaction fingerprints and exit")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall timeout")
	flag.Parse()

	if err := run(*configPath, *accountID, *backfill, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, accountID int64, backfill bool, timeout time.Duration) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLoggerWithSystem(cfg.Logging, "import")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ledger, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	detector := match.NewDetector(match.DefaultConfig())
	processor := importer.NewProcessor(ledger, detector, logger)

	if backfill {
		var total int
		seen := map[int64]bool{}
		for _, a := range cfg.Feed.Accounts {
			if seen[a.UserID] {
				continue
			}
			seen[a.UserID] = true
			n, err := processor.BackfillFingerprints(ctx, a.UserID)
			if err != nil {
				return fmt.Errorf("backfilling fingerprints for user %d: %w", a.UserID, err)
			}
			total += n
		}
		logger.Info("fingerprint backfill completed", "updated", total)
		return nil
	}

	if cfg.Feed.BaseURL == "" {
		return fmt.Errorf("no feed base URL configured")
	}
	feedClient := feed.NewHTTPClient(cfg.Feed.BaseURL, cfg.Feed.Token)

	bindings := make([]service.AccountBinding, 0, len(cfg.Feed.Accounts))
	for _, a := range cfg.Feed.Accounts {
		if accountID != 0 && a.AccountID != accountID {
			continue
		}
		bindings = append(bindings, service.AccountBinding{
			UserID:         a.UserID,
			AccountID:      a.AccountID,
			FeedAccountRef: a.FeedAccountRef,
		})
	}
	if len(bindings) == 0 {
		return fmt.Errorf("no accounts to import")
	}

	importService := service.NewImportService(ledger, feedClient, processor, bindings, service.Config{
		MaxParallelAccounts: cfg.Scheduler.MaxParallelAccounts,
	}, logger)

	importService.RunCycle(ctx)
	return nil
}
