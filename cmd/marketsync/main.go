package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marketsync-ledger/internal/api"
	"github.com/marketsync-ledger/internal/config"
	"github.com/marketsync-ledger/internal/data/mongo"
	"github.com/marketsync-ledger/internal/data/postgres"
	"github.com/marketsync-ledger/internal/domain/rawpayload"
	"github.com/marketsync-ledger/internal/importer/ozon"
	"github.com/marketsync-ledger/internal/importer/wildberries"
	"github.com/marketsync-ledger/internal/logger"
	"github.com/marketsync-ledger/internal/platform/messaging/producers"
	"github.com/marketsync-ledger/internal/platform/persistence"
	"github.com/marketsync-ledger/internal/posting"
	"github.com/marketsync-ledger/internal/progress"
	"github.com/marketsync-ledger/internal/scheduler"
	"github.com/marketsync-ledger/internal/sessionlog"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("marketsync")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting marketplace sync service",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Datastores
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Repositories
	saleRepo := postgres.NewSaleRepository(log, postgresDB)
	shipmentRepo := postgres.NewShipmentRepository(log, postgresDB)
	productRepo := postgres.NewProductRepository(log, postgresDB)
	taskRepo := postgres.NewTaskRepository(log, postgresDB)
	connectionRepo := postgres.NewConnectionRepository(log, postgresDB)
	ledgerRepo := mongo.NewLedgerRepository(log, mongoDB.Database())
	payloadRepo := mongo.NewRawPayloadRepository(log, mongoDB.Database())

	// Import plumbing
	engine := posting.NewEngine(saleRepo, shipmentRepo, ledgerRepo, log)
	tracker := progress.NewTracker()
	sessionLog := sessionlog.NewLogger(cfg.Sessions.LogDir)

	runEvents, err := producers.NewRunEventProducer(log, &cfg.Scheduler, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize run event producer", "error", err)
		os.Exit(1)
	}
	// runEvents is nil when publishing is not configured; the producer is nil-safe.

	// Executors and registry
	registry := scheduler.NewRegistry(log)
	registry.Register(ozon.NewExecutor(
		log, connectionRepo, productRepo, shipmentRepo, saleRepo,
		payloadRepo, engine, tracker, sessionLog, ozon.NewHTTPClient,
	))
	registry.Register(wildberries.NewExecutor(
		log, connectionRepo, saleRepo,
		payloadRepo, engine, tracker, sessionLog, wildberries.NewHTTPClient,
	))

	worker, err := scheduler.NewWorker(log, &cfg.Scheduler, taskRepo, registry, tracker, sessionLog, runEvents)
	if err != nil {
		log.Error("Failed to initialize scheduled task worker", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(log, cfg, taskRepo, registry, worker, tracker, sessionLog, ledgerRepo)

	errChan := make(chan error, 1)

	go worker.Start(appCtx)
	go runCleanupLoops(appCtx, log, cfg, tracker, payloadRepo)
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", "error", err)
	}

	// Let in-flight imports finish before closing the stores under them.
	worker.Shutdown()

	if err := runEvents.Close(); err != nil {
		log.Error("Error closing run event producer", "error", err)
	}

	postgresDB.Close()
	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Shutdown completed with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Shutdown completed successfully")
}

// runCleanupLoops evicts old terminal progress snapshots and, when configured,
// prunes the raw payload archive.
func runCleanupLoops(ctx context.Context, log *slog.Logger, cfg *config.Config, tracker *progress.Tracker, payloads rawpayload.Repository) {
	ticker := time.NewTicker(cfg.Sessions.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := tracker.CleanupOldSessions(cfg.Sessions.Retention); removed > 0 {
				log.Info("Evicted finished import sessions", "removed", removed)
			}
			if cfg.Sessions.RawPayloadMaxAge > 0 {
				if _, err := payloads.CleanupOlderThan(ctx, cfg.Sessions.RawPayloadMaxAge); err != nil {
					log.Error("Raw payload pruning failed", "error", err)
				}
			}
		}
	}
}
