package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gradeinsight/gradeinsight/internal/api"
	"github.com/gradeinsight/gradeinsight/internal/assistant"
	"github.com/gradeinsight/gradeinsight/internal/auth"
	"github.com/gradeinsight/gradeinsight/internal/config"
	"github.com/gradeinsight/gradeinsight/internal/gradedb"
	"github.com/gradeinsight/gradeinsight/internal/memory"
	"github.com/gradeinsight/gradeinsight/internal/nl2sql"
	"github.com/gradeinsight/gradeinsight/internal/observability"
	"github.com/gradeinsight/gradeinsight/internal/policy"
	"github.com/gradeinsight/gradeinsight/internal/quickquery"
	"github.com/gradeinsight/gradeinsight/internal/sqlguard"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("gradeinsight-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := gradedb.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to open grade db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	pol, err := policy.New(cfg.Policy)
	if err != nil {
		logger.Error("failed to build query policy", slog.Any("error", err))
		os.Exit(1)
	}
	guard := sqlguard.New(pol)
	executor := gradedb.NewExecutor(db, pol)
	catalog := quickquery.New(executor, cfg.Assistant)
	memories := memory.NewStore(db)

	ollama, err := nl2sql.NewOllamaClient(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}

	service := assistant.NewService(cfg.Assistant, logger, assistant.Dependencies{
		Guard:      guard,
		Executor:   executor,
		Catalog:    catalog,
		Memories:   memories,
		Translator: ollama,
		Formatter:  ollama,
		Pinger:     ollama,
	})

	deps := api.Dependencies{
		Logger:    logger,
		Assistant: service,
		Memories:  memories,
		Catalog:   catalog,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabaseDSN(cfg),
			executor.HealthCheck,
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
