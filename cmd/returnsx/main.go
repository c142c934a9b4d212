// ReturnsX - COD fraud risk scoring for merchant stores.
// Copyright (c) 2025 ReturnsX
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/returnsx/returnsx/internal/api"
	"github.com/returnsx/returnsx/internal/bus"
	"github.com/returnsx/returnsx/internal/cache"
	"github.com/returnsx/returnsx/internal/domain"
	"github.com/returnsx/returnsx/internal/processor"
	"github.com/returnsx/returnsx/internal/repository"
	"github.com/returnsx/returnsx/internal/rules"
	"github.com/returnsx/returnsx/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("RETURNSX_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting returnsx",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("RETURNSX_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if salt := os.Getenv("RETURNSX_IDENTITY_SALT"); salt != "" {
		cfg.IdentitySalt = salt
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Override Rule Engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Load override rules from database (no hardcoded defaults - configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load override rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Processor
	proc := processor.New(repo, cacheImpl, engine, busImpl)
	slog.Info("processor initialized",
		"dedup_window", proc.DedupWindow,
		"assessment_ttl", proc.AssessmentTTL,
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("RETURNSX_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, proc)

		// Get store IDs to process (from environment or default)
		storeIDs := []string{}
		if envStores := os.Getenv("RETURNSX_STORES"); envStores != "" {
			storeIDs = strings.Split(envStores, ",")
		}

		workerCfg := worker.Config{
			StoreIDs: storeIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "store_count", len(storeIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, proc, cfg.IdentitySalt, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("returnsx is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("returnsx shutdown complete")
}

// loadRulesFromDatabase loads each configured store's override rules into the
// engine. Store IDs come from RETURNSX_STORES; rules for other stores load
// lazily via POST /rules/reload.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	envStores := os.Getenv("RETURNSX_STORES")
	if envStores == "" {
		slog.Info("no stores preconfigured - override rules load via POST /rules/reload")
		return nil
	}

	for _, storeID := range strings.Split(envStores, ",") {
		dbRules, err := repo.ListOverrideRules(ctx, storeID)
		if err != nil {
			slog.Warn("failed to list override rules", "store_id", storeID, "error", err)
			continue
		}
		if len(dbRules) == 0 {
			continue
		}
		if err := engine.LoadRules(dbRules); err != nil {
			return err
		}
		slog.Info("override rules loaded", "store_id", storeID, "count", len(dbRules))
	}

	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              📦 RETURNSX                  ║")
	fmt.Println("  ║       COD Risk Scoring Engine             ║")
	fmt.Println("  ║    Know who refuses before you ship.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /events                      - Ingest an order event")
	fmt.Println("    GET  /customers/{id}              - Get customer profile")
	fmt.Println("    GET  /customers/{id}/assessment   - Assess COD risk")
	fmt.Println("    GET  /customers/{id}/events       - List order events")
	fmt.Println("    DELETE /customers/{id}            - Erase customer data")
	fmt.Println("    GET  /config                      - Get risk configuration")
	fmt.Println("    PUT  /config                      - Update risk configuration")
	fmt.Println("    GET  /rules                       - List override rules")
	fmt.Println("    POST /rules                       - Create an override rule")
	fmt.Println("    DELETE /rules/{id}                - Delete an override rule")
	fmt.Println("    POST /rules/reload                - Hot-reload rules from database")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
