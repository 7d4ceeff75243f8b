// Package main is the entry point for the alpha/beta benchmark dashboard.
// It serves a browser dashboard that fetches daily prices, dividends and
// splits for a benchmark and an asset, converts them into total log returns
// and regresses the asset's returns on the benchmark's.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/alphabeta/internal/clients/refinitiv"
	"github.com/aristath/alphabeta/internal/config"
	"github.com/aristath/alphabeta/internal/modules/dashboard"
	"github.com/aristath/alphabeta/internal/scheduler"
	"github.com/aristath/alphabeta/internal/server"
	"github.com/aristath/alphabeta/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("eikon_url", cfg.EikonBaseURL).
		Bool("dev_mode", cfg.DevMode).
		Msg("Starting alpha/beta dashboard")

	// The key is read once here and never re-read.
	client := refinitiv.NewClient(cfg.EikonBaseURL, cfg.EikonAppKey, cfg.FetchTimeout, log)

	manager := dashboard.NewManager(client, dashboard.Defaults{
		Benchmark: cfg.Defaults.Benchmark,
		Asset:     cfg.Defaults.Asset,
		Start:     cfg.Defaults.Start,
		MinDate:   cfg.Defaults.MinDate,
	}, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.SessionSweep, scheduler.NewSessionSweepJob(manager, cfg.SessionIdleTTL, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register session sweep job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:     log,
		Manager: manager,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
