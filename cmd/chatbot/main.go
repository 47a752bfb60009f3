package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/adapter/llm"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/backup"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/config"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/logging"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/metrics"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/policy"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/repository"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/service"
	v1 "github.com/Miguel0728/ChatBot-AI-V2/internal/transport/http/v1"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting chatbot",
		"version", v1.Version,
		"http_port", cfg.HTTPPort,
		"database_driver", cfg.DatabaseDriver,
		"model", cfg.Model,
		"mock", cfg.MockMode(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	// Initialize completion gateway
	if !cfg.MockMode() && cfg.LLMAPIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; completion calls will fail")
	}
	llmClient := llm.NewLLMClient(cfg.MockMode(), cfg.LLMBaseURL, cfg.LLMAPIKey, logger)
	gateway := llm.NewGateway(llmClient, llm.GatewayOptions{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
	})
	if !cfg.MockMode() {
		checkModel(ctx, gateway, cfg.Model, cfg.LLMTimeout, logger)
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}
	if cfg.PolicyFile != "" {
		if err := policy.LoadFile(ctx, policyEngine, cfg.PolicyFile); err != nil {
			return err
		}
		watcher, err := policy.NewFileWatcher(policyEngine, cfg.PolicyFile, policy.DefaultDebounceInterval, logger)
		if err != nil {
			return err
		}
		go watcher.Watch(ctx, nil)
		defer watcher.Stop()
		logger.Info("policy loaded", "path", cfg.PolicyFile)
	}

	collector := metrics.NewCollector(nil)
	svc := service.New(store, gateway, policyEngine, collector, cfg, logger)

	// Backups
	backuper := backup.NewBackuper(store, cfg.BackupDir, collector, logger)
	scheduler := backup.NewScheduler(backuper, cfg.BackupSchedule, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	// Websocket hub
	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	wsServer := ws.NewServer(ctx, cfg, hub, svc, logger)

	// HTTP server
	e := v1.NewServer(logger)
	v1.NewHandler(svc, backuper, collector, cfg, logger).RegisterRoutes(e)
	wsServer.RegisterRoutes(e)

	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	logger.Info("chatbot started", "addr", fmt.Sprintf("http://localhost:%d", cfg.HTTPPort))

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("shutting down chatbot")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", "error", err)
	}
	wsServer.Wait()

	logger.Info("chatbot stopped")
	return nil
}

// checkModel warns when the completion API does not list the configured model.
// Startup continues either way.
func checkModel(ctx context.Context, gateway *llm.Gateway, model string, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := gateway.ModelAvailable(ctx)
	switch {
	case err != nil:
		logger.Warn("could not list models", "error", err)
	case !ok:
		logger.Warn("configured model is not listed by the completion API", "model", model)
	}
}
