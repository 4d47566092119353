// Command server runs the envelope budgeting backend: the HTTP API plus
// the periodic bank-feed import service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/budgetnz/envelope-sync-backend/internal/adapters/feed"
	"github.com/budgetnz/envelope-sync-backend/internal/api"
	"github.com/budgetnz/envelope-sync-backend/internal/application/importer"
	"github.com/budgetnz/envelope-sync-backend/internal/application/service"
	"github.com/budgetnz/envelope-sync-backend/internal/domain/match"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/config"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/logging"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Logging)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	detector := match.NewDetector(match.DefaultConfig())
	processor := importer.NewProcessor(ledger, detector, logger.With("system", "importer"))

	var feedClient feed.Client
	if cfg.Feed.BaseURL != "" {
		feedClient = feed.NewHTTPClient(cfg.Feed.BaseURL, cfg.Feed.Token)
	} else {
		// No feed configured: imports only happen through the API.
		feedClient = &feed.StaticClient{}
	}

	bindings := make([]service.AccountBinding, 0, len(cfg.Feed.Accounts))
	for _, a := range cfg.Feed.Accounts {
		bindings = append(bindings, service.AccountBinding{
			UserID:         a.UserID,
			AccountID:      a.AccountID,
			FeedAccountRef: a.FeedAccountRef,
		})
	}

	importService := service.NewImportService(ledger, feedClient, processor, bindings, service.Config{
		Interval:            cfg.Scheduler.Interval,
		MaxParallelAccounts: cfg.Scheduler.MaxParallelAccounts,
	}, logger.With("system", "scheduler"))

	if len(bindings) > 0 {
		if err := importService.Start(ctx); err != nil {
			return fmt.Errorf("starting import service: %w", err)
		}
		defer importService.Stop()
	}

	server := api.NewServer(api.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, ledger, processor, logger.With("system", "api"))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
