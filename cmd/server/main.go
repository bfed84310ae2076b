package main

import (
	// Standard library
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/gijibot/gijibot/cmd/server/internal/api"
	"github.com/gijibot/gijibot/cmd/server/internal/audit"
	"github.com/gijibot/gijibot/cmd/server/internal/chatwork"
	"github.com/gijibot/gijibot/cmd/server/internal/config"
	"github.com/gijibot/gijibot/cmd/server/internal/gemini"
	"github.com/gijibot/gijibot/cmd/server/internal/ledger"
	"github.com/gijibot/gijibot/cmd/server/internal/middleware"
	"github.com/gijibot/gijibot/cmd/server/internal/pipeline"
	"github.com/gijibot/gijibot/cmd/server/internal/recording"
	"github.com/gijibot/gijibot/cmd/server/internal/scheduler"
	"github.com/gijibot/gijibot/cmd/server/internal/zoom"
	"github.com/gijibot/gijibot/pkg/logger"
)

func main() {
	logInstance, err := logger.Init(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: os.Getenv("ENV"),
		WithSource:  !strings.EqualFold(os.Getenv("ENV"), "production"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "server")

	// Load and validate configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		appLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)
	fmt.Println(cfg.PrintConfig())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Working directories
	for _, dir := range []string{cfg.Data.TempDir, cfg.Data.AuditDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appLogger.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	// Processing ledger
	led := ledger.Load(cfg.Data.LedgerPath, logInstance.With("component", "ledger"))
	appLogger.Info("ledger loaded", "path", cfg.Data.LedgerPath, "entries", len(led.All()))

	// Zoom client with dual-strategy credentials
	broker := zoom.NewCredentialBroker(cfg.Zoom.APIKey, cfg.Zoom.APISecret, cfg.Zoom.AccountID)
	zoomClient := zoom.NewClient(broker, logInstance.With("component", "zoom"))
	if broker.HasAccountID() {
		appLogger.Info("zoom auth ready", "strategies", "self-signed + oauth exchange")
	} else {
		appLogger.Info("zoom auth ready", "strategies", "self-signed only")
	}

	// Summarizer
	prompts, err := gemini.LoadPrompts(cfg.Gemini.PromptFile)
	if err != nil {
		appLogger.Warn("prompt overrides unavailable, using defaults", "error", err)
	}
	usage := gemini.LoadUsageTracker(cfg.Data.UsagePath, logInstance.With("component", "usage"))
	summarizer := gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model, prompts, usage, logInstance.With("component", "gemini"))

	// Delivery
	chatworkClient := chatwork.NewClient(cfg.Chatwork.APIToken, logInstance.With("component", "chatwork"))

	// Local recording discovery
	scanner := recording.NewScanner(logInstance.With("component", "scanner"))
	resolver := recording.NewResolver(scanner, logInstance.With("component", "resolver"))

	// Pipeline
	registry := pipeline.NewRegistry(cfg.Sweep.TaskRetention)
	auditLog := audit.NewLogger(cfg.Data.AuditDir)
	orch := pipeline.NewOrchestrator(pipeline.Options{
		Local:         resolver,
		Source:        zoomClient,
		Summarizer:    summarizer,
		Deliverer:     chatworkClient,
		Ledger:        led,
		Registry:      registry,
		Audit:         auditLog,
		TempDir:       cfg.Data.TempDir,
		DefaultRoomID: cfg.Chatwork.DefaultRoomID,
		WorkerPool:    cfg.Sweep.WorkerPool,
		Log:           logInstance.With("component", "pipeline"),
	})

	// Background sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sched := scheduler.New(orch, cfg.Sweep.Interval, logInstance.With("component", "scheduler"))
	go sched.Run(sweepCtx)

	// HTTP surface
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	handlers := &api.Handlers{
		Orchestrator:  orch,
		Ledger:        led,
		Meetings:      zoomClient,
		Rooms:         chatworkClient,
		Usage:         usage,
		Model:         cfg.Gemini.Model,
		WebhookSecret: cfg.Zoom.WebhookSecret,
		DefaultRoomID: cfg.Chatwork.DefaultRoomID,
		Log:           logInstance.With("component", "api"),
	}
	handlers.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: r,
	}

	go func() {
		appLogger.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server shutdown complete")
}
