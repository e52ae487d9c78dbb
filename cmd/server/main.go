// UniGo - career and major recommendation chat widget gateway
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

	"github.com/unigo-labs/unigo-chat/internal/api"
	"github.com/unigo-labs/unigo-chat/internal/config"
	"github.com/unigo-labs/unigo-chat/internal/health"
	"github.com/unigo-labs/unigo-chat/internal/identity"
	"github.com/unigo-labs/unigo-chat/internal/middleware"
	"github.com/unigo-labs/unigo-chat/internal/onboarding"
	"github.com/unigo-labs/unigo-chat/internal/session"
	"github.com/unigo-labs/unigo-chat/internal/socket"
	"github.com/unigo-labs/unigo-chat/internal/store"
	"github.com/unigo-labs/unigo-chat/internal/sweeper"
	"github.com/unigo-labs/unigo-chat/internal/transcript"
	"github.com/unigo-labs/unigo-chat/internal/upstream"
	"github.com/unigo-labs/unigo-chat/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.Store.Backend, "container", config.IsContainer())

	// Initialize dependencies.
	kv, err := openStore(cfg.Store)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := kv.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected")

	questions, err := onboarding.Load(cfg.Onboarding.QuestionSet)
	if err != nil {
		slog.Error("Failed to load onboarding questions", "error", err, "set", cfg.Onboarding.QuestionSet)
		os.Exit(1)
	}
	slog.Info("Onboarding questions loaded", "set", questions.Name, "count", questions.Len())

	client, err := upstream.NewClient(upstream.ClientConfig{
		BaseURL:     cfg.UpstreamURL,
		AuthTimeout: cfg.AuthCheckTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize upstream client", "error", err)
		os.Exit(1)
	}

	journal, err := transcript.New(transcript.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	sessions := session.NewManager(kv, client, session.Options{
		Questions: questions,
		Autostart: cfg.Onboarding.Autostart,
	}, journal, logger)
	registry := socket.NewRegistry()
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(kv)
	widgetHandler := api.NewWidgetHandler(sessions, api.WidgetConfig{
		QuestionSet:   questions,
		Autostart:     cfg.Onboarding.Autostart,
		RevealEnabled: cfg.RevealEnabled,
	}, logger)
	wsHandler := socket.NewHandler(sessions, registry, cfg.AllowedOrigins(), cfg.RevealEnabled, cfg.IsDevelopment(), logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))
	r.Use(middleware.ForwardCredentials)

	// Public routes.
	healthHandler.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(middleware.MaxBody(cfg.MaxRequestBody))
		widgetHandler.RegisterRoutes(r)
	})

	// WebSocket endpoint.
	r.Get("/ws/widget", wsHandler.ServeHTTP)

	// Serve embedded widget page (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: reveal streams are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background workers.
	sweep := sweeper.New(kv, sessions, cfg.Store.SessionTTL, cfg.Store.SweepInterval, logger)
	sweep.Start(ctx)
	go limiter.Run(ctx, time.Minute)

	if cfg.GRPCHealthPort != "" {
		hs := health.NewServer(map[string]health.Pinger{"store": kv}, 0, logger)
		go func() {
			if err := hs.ListenAndServe(ctx, cfg.GRPCHealthPort); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

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
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	<-sweep.Done()
	slog.Info("Server stopped successfully")
}

func openStore(cfg config.StoreConfig) (store.KV, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rc := store.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return store.NewRedis(rc, cfg.SessionTTL)
	case config.BackendMemory:
		return store.NewMemory(cfg.SessionTTL), nil
	default:
		return store.NewSQLite(cfg.DBPath, cfg.SessionTTL)
	}
}
