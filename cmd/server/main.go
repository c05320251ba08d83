// GoalGetter - AI Coaching Backend
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/goalgetter/goalgetter/internal/api"
	"github.com/goalgetter/goalgetter/internal/chat"
	"github.com/goalgetter/goalgetter/internal/config"
	"github.com/goalgetter/goalgetter/internal/goals"
	"github.com/goalgetter/goalgetter/internal/identity"
	"github.com/goalgetter/goalgetter/internal/llm"
	"github.com/goalgetter/goalgetter/internal/memory"
	"github.com/goalgetter/goalgetter/internal/middleware"
	"github.com/goalgetter/goalgetter/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Initialize services.
	factory := llm.NewFactory(llm.FactoryConfig{
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		AnthropicModel:  cfg.LLM.AnthropicModel,
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		OpenAIModel:     cfg.LLM.OpenAIModel,
		DefaultProvider: cfg.LLM.DefaultProvider,
	}, logger)

	gate := chat.NewGate(repo, chat.GateConfig{
		WindowBefore:    cfg.Gate.WindowBefore,
		WindowAfter:     cfg.Gate.WindowAfter,
		DefaultDuration: cfg.Gate.DefaultDuration,
		LookAhead:       cfg.Gate.LookAhead,
	})

	registry := chat.NewRegistry(chat.RegistryConfig{
		MaxConnectionsPerUser: cfg.Chat.MaxConnectionsPerUser,
		MaxAttempts:           cfg.Chat.MaxAttempts,
		AttemptWindow:         cfg.Chat.AttemptWindow,
	}, logger)

	executor := goals.NewExecutor(repo, logger)
	contexts := memory.NewService(repo, factory, memory.DefaultConfig(), logger)
	welcome := chat.NewWelcomeService(repo, contexts, factory, logger)
	orchestrator := chat.NewOrchestrator(repo, gate, factory, executor, chat.DefaultOrchestratorConfig(), logger)

	wsConfig := chat.DefaultHandlerConfig()
	wsConfig.SaveThreshold = cfg.Chat.ContextSaveThreshold
	wsConfig.IsDev = cfg.IsDevelopment()
	wsConfig.AllowedOrigin = cfg.FrontendURL
	wsHandler := chat.NewHandler(registry, gate, orchestrator, welcome, contexts, wsConfig, logger)

	// Initialize handlers.
	chatHandler := api.NewChatHandler(repo, gate)
	healthHandler := api.NewHealthHandler(repo, registry)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterRoutes(r)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Create server. The websocket endpoint needs long-lived writes, so no
	// write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
