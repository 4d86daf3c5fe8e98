// Package main is the entry point for the costbook position service.
// It maintains, per tracked instrument, a derived position summary
// (shares held, cost basis, average cost, realized profit) computed by
// replaying an ordered transaction log with moving-average costing.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/costbook/internal/config"
	"github.com/aristath/costbook/internal/database"
	"github.com/aristath/costbook/internal/modules/instruments"
	instrumenthandlers "github.com/aristath/costbook/internal/modules/instruments/handlers"
	"github.com/aristath/costbook/internal/modules/ledger"
	ledgerhandlers "github.com/aristath/costbook/internal/modules/ledger/handlers"
	"github.com/aristath/costbook/internal/modules/positions"
	positionhandlers "github.com/aristath/costbook/internal/modules/positions/handlers"
	"github.com/aristath/costbook/internal/modules/reports"
	reporthandlers "github.com/aristath/costbook/internal/modules/reports/handlers"
	"github.com/aristath/costbook/internal/scheduler"
	"github.com/aristath/costbook/internal/server"
	"github.com/aristath/costbook/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting costbook")

	// Two-database architecture:
	// - ledger.db: the authoritative transaction log (maximum durability)
	// - portfolio.db: derived position aggregates, rebuildable from ledger.db
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	for _, db := range []*database.DB{ledgerDB, portfolioDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to apply schema")
		}
	}

	// Repositories
	instrumentRepo := instruments.NewRepository(ledgerDB.Conn(), log)
	transactionRepo := ledger.NewTransactionRepository(ledgerDB.Conn(), log)
	aggregateRepo := positions.NewAggregateRepository(portfolioDB.Conn(), log)

	// Services
	positionService := positions.NewService(transactionRepo, instrumentRepo, aggregateRepo, log)
	reportService := reports.NewService(transactionRepo, instrumentRepo, log)

	// Heal any aggregate drift from an unclean shutdown before serving
	if result, err := positionService.RecomputeAll(); err != nil {
		log.Error().Err(err).Msg("Startup recompute failed")
	} else if len(result.Errors) > 0 {
		log.Warn().Int("failed", len(result.Errors)).Msg("Startup recompute finished with failures")
	}

	// HTTP server
	srv := server.New(server.Config{
		Log:                log,
		Port:               cfg.Port,
		DevMode:            cfg.DevMode,
		InstrumentHandlers: instrumenthandlers.NewHandler(instrumentRepo, positionService, log),
		LedgerHandlers:     ledgerhandlers.NewHandler(transactionRepo, instrumentRepo, positionService, log),
		PositionHandlers:   positionhandlers.NewHandler(positionService, log),
		ReportHandlers:     reporthandlers.NewHandler(reportService, log),
		SystemHandlers:     server.NewSystemHandlers(ledgerDB, portfolioDB, log),
	})

	// Nightly safety-net recompute
	sched := scheduler.New(log)
	if !cfg.DisableScheduler {
		job := positions.NewRecomputeJob(positionService, log)
		if err := sched.AddJob(cfg.RecomputeCron, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RecomputeCron).Msg("Failed to register recompute job")
		}
		sched.Start()
		defer sched.Stop()
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}

	// Truncate WAL files while no writers remain, so the next start opens
	// compact databases
	for _, db := range []*database.DB{ledgerDB, portfolioDB} {
		if err := db.WALCheckpoint(""); err != nil {
			log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	log.Info().Msg("costbook stopped")
}
