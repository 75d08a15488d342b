// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/support-chat/support-agent/internal/config"
	"github.com/support-chat/support-agent/internal/handler"
	"github.com/support-chat/support-agent/internal/llm"
	natsclient "github.com/support-chat/support-agent/internal/nats"
	"github.com/support-chat/support-agent/internal/service"
	"github.com/support-chat/support-agent/internal/store"
	"github.com/support-chat/support-agent/pkg/logger"
	"github.com/support-chat/support-agent/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.FromEnv(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting API server",
		zap.String("database_driver", cfg.DatabaseDriver),
		zap.String("llm_provider", cfg.LLMProvider),
	)

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-chat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(ctx, tp) }()
		}
	}

	// Open the database
	st, err := store.Open(store.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL,
		SSL:    cfg.DatabaseSSL,
	})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()

	if cfg.DatabaseAutoMigrate {
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := st.Migrate(migrateCtx)
		cancel()
		if err != nil {
			log.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	// Initialize LLM client
	llmClient := newLLMClient(ctx, cfg, log)
	generator := llm.NewReplyGenerator(llmClient, log,
		llm.WithModel(cfg.LLMModel),
		llm.WithMaxTokens(cfg.LLMMaxTokens),
		llm.WithTimeout(cfg.LLMTimeout),
	)

	// Connect to NATS when the message feed is enabled
	checks := map[string]handler.Pinger{"database": st}
	var publisher service.Publisher
	if cfg.NATSURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		natsClient, streamManager, err := connectFeed(connectCtx, cfg, log)
		cancel()
		if err != nil {
			log.Warn("message feed disabled", zap.Error(err))
		} else {
			defer natsClient.Close()
			publisher = streamManager
			checks["nats"] = natsClient
		}
	}

	// Initialize services and handlers
	chatSvc := service.NewChatService(st, generator, publisher, log, service.Options{
		HistoryWindow:    cfg.HistoryWindow,
		MaxMessageLength: cfg.MaxMessageLength,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Chat:           handler.NewChatHandler(chatSvc, log),
		Health:         handler.NewHealthHandler(checks),
		Logger:         log,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// newLLMClient builds the configured provider. Without a usable key the
// server still runs and every reply is the fallback text.
func newLLMClient(ctx context.Context, cfg *config.Config, log *logger.Logger) llm.Client {
	var getter config.ParamGetter
	if cfg.LLMAPIKeyParam != "" {
		ps, err := config.NewSSMParamStore(ctx)
		if err != nil {
			log.Warn("failed to create SSM client", zap.Error(err))
		} else {
			getter = ps
		}
	}

	apiKey, err := config.ResolveAPIKey(ctx, cfg, getter)
	if err != nil {
		log.Warn("failed to resolve LLM API key, LLM features disabled", zap.Error(err))
		return nil
	}

	client, err := llm.NewClient(llm.Options{
		Provider: llm.Provider(cfg.LLMProvider),
		APIKey:   apiKey,
		BaseURL:  cfg.LLMBaseURL,
		Model:    cfg.LLMModel,
	})
	if err != nil {
		log.Warn("failed to create LLM client, LLM features disabled",
			zap.String("provider", cfg.LLMProvider),
			zap.Error(err),
		)
		return nil
	}
	return client
}

func connectFeed(ctx context.Context, cfg *config.Config, log *logger.Logger) (*natsclient.Client, *natsclient.StreamManager, error) {
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		return nil, nil, err
	}

	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		natsClient.Close()
		return nil, nil, fmt.Errorf("ensure stream: %w", err)
	}
	return natsClient, streamManager, nil
}
