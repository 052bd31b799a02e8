// Kestrel - Credit decisions with every signal accounted for.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/assessor"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/embedding"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/index"
	"github.com/opensource-finance/kestrel/internal/orchestrator"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
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
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	// Optional bearer-token auth
	cfg.Auth.Secret = os.Getenv("KESTREL_AUTH_SECRET")
	cfg.Auth.Issuer = os.Getenv("KESTREL_AUTH_ISSUER")

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"embedder", cfg.Embedding.Type,
		"classifier", cfg.Classifier.Type,
		"auth_enabled", cfg.Auth.Secret != "",
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

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(repo, cacheImpl)
	slog.Info("velocity service initialized")

	// Initialize Fraud Rule Engine with velocity getter
	engine, err := fraud.NewEngine(velocitySvc.GetVelocityGetter(), 100)
	if err != nil {
		slog.Error("failed to initialize fraud rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadFraudRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load fraud rules", "error", err)
		os.Exit(1)
	}
	slog.Info("fraud rule engine initialized", "rules_count", engine.RulesCount())

	fraudDetector := fraud.NewDetector(engine, cfg.Fusion, logger)

	// Initialize structured classifier
	var classifier domain.Classifier
	switch cfg.Classifier.Type {
	case "remote":
		classifier = assessor.NewRemote(cfg.Classifier.RemoteURL,
			time.Duration(cfg.Classifier.RemoteTimeout)*time.Second, logger)
	default:
		classifier = assessor.NewHeuristic()
	}
	slog.Info("classifier initialized", "type", cfg.Classifier.Type)

	// Initialize embedder, cached through the shared cache
	baseEmbedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		slog.Error("failed to initialize embedder", "error", err)
		os.Exit(1)
	}
	embedder := embedding.NewCached(baseEmbedder, cacheImpl, logger)
	slog.Info("embedder initialized", "type", cfg.Embedding.Type, "dimension", cfg.Embedding.Dimension)

	// Initialize similarity index and warm it from the case corpus
	idx := index.New(cfg.Embedding.Dimension, logger)
	tenantIDs := parseTenants(os.Getenv("KESTREL_TENANTS"))
	for _, tenantID := range tenantIDs {
		if err := idx.Load(ctx, repo, tenantID); err != nil {
			slog.Warn("failed to warm similarity index", "tenant_id", tenantID, "error", err)
			continue
		}
		slog.Info("similarity index warmed", "tenant_id", tenantID, "cases", idx.Size(tenantID))
	}

	// Initialize Orchestrator
	orch := orchestrator.New(classifier, embedder, idx, fraudDetector, velocitySvc, cfg.Fusion, logger)
	slog.Info("orchestrator initialized",
		"branch_timeout_s", cfg.Fusion.BranchTimeout,
		"top_k", cfg.Fusion.TopK,
		"min_evidence", cfg.Fusion.MinEvidence,
		"fraud_threshold", cfg.Fusion.FraudThreshold,
	)

	// Initialize async Worker. It always runs: resolved cases submitted via
	// the API travel over the bus, and without a consumer they would be
	// accepted and then dropped. With no configured tenants it subscribes
	// across all of them.
	asyncWorker := worker.NewWorker(busImpl, repo, orch, idx)
	if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
		slog.Error("failed to start async worker", "error", err)
	} else {
		slog.Info("async worker started", "tenant_count", len(tenantIDs))
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, cfg.Auth, repo, cacheImpl, busImpl, orch, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for fraud rules that apply to all tenants.
const GlobalTenantID = "*"

// loadFraudRules loads fraud rules from the database into the engine.
// A fresh database gets the default rule set seeded so the fraud branch
// works out of the box; rules are managed via the /fraud-rules API afterwards.
func loadFraudRules(ctx context.Context, repo domain.Repository, engine *fraud.Engine) error {
	dbRules, err := repo.ListFraudRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list fraud rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading fraud rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	defaults := fraud.DefaultRules(GlobalTenantID)
	slog.Info("seeding default fraud rules", "count", len(defaults))
	for _, rule := range defaults {
		if err := repo.SaveFraudRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Warn("failed to persist default fraud rule", "id", rule.ID, "error", err)
		}
	}
	return engine.LoadRules(defaults)
}

// parseTenants splits the comma-separated tenant list from the environment.
func parseTenants(env string) []string {
	if env == "" {
		return nil
	}
	parts := strings.Split(env, ",")
	tenants := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═════════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                    ║")
	fmt.Println("  ║      Credit Decision Fusion Engine          ║")
	fmt.Println("  ║    Every signal, one auditable verdict.     ║")
	fmt.Println("  ╚═════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /applications/evaluate - Evaluate a credit application")
	fmt.Println("    GET  /applications/{id}     - Get application by case ID")
	fmt.Println("    GET  /decisions/{id}        - Get decision record by ID")
	fmt.Println("    POST /cases                 - Record a resolved case")
	fmt.Println("    GET  /fraud-rules           - List all fraud rules")
	fmt.Println("    POST /fraud-rules           - Create a new fraud rule")
	fmt.Println("    POST /fraud-rules/reload    - Hot-reload rules from database")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
