// orcascore - task planning backend for the desktop workspace
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

	"github.com/ashureev/orcascore/internal/api"
	"github.com/ashureev/orcascore/internal/config"
	"github.com/ashureev/orcascore/internal/events"
	"github.com/ashureev/orcascore/internal/llm"
	"github.com/ashureev/orcascore/internal/locks"
	"github.com/ashureev/orcascore/internal/metrics"
	"github.com/ashureev/orcascore/internal/middleware"
	"github.com/ashureev/orcascore/internal/planner"
	"github.com/ashureev/orcascore/internal/seed"
	"github.com/ashureev/orcascore/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

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

	if err := run(cfg, logger); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	if cfg.SeedDefaultAgents {
		agents, err := seed.Load(cfg.AgentSeedPath)
		if err != nil {
			return fmt.Errorf("load agent seed: %w", err)
		}
		n, err := seed.Agents(context.Background(), repo, agents, logger)
		if err != nil {
			return fmt.Errorf("seed agents: %w", err)
		}
		if n > 0 {
			slog.Info("Seeded default agents", "count", n, "source", seedSource(cfg.AgentSeedPath))
		}
	}

	var m *metrics.Metrics
	reg := prometheus.NewRegistry()
	if cfg.MetricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.MustNewMetrics(reg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(cfg.EventReplaySize, events.WithMetrics(m), events.WithLogger(logger))
	gateway := llm.NewGateway(repo,
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLMHTTPTimeout}),
		llm.WithLogger(logger),
		llm.WithMetrics(m))
	lockMgr := locks.NewManager(repo, locks.WithMetrics(m), locks.WithLogger(logger))
	runner := planner.NewRunner(ctx, planner.Deps{
		Store:   repo,
		Chat:    gateway,
		Events:  hub,
		Metrics: m,
		Logger:  logger,
	})

	// Initialize handlers.
	base := api.NewHandler(logger)
	wsHandler := events.NewWebSocketHandler(hub, cfg.WebSocketOriginPatterns()...)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	api.NewHealthHandler(base, repo, hub).RegisterRoutes(r)
	api.NewPlanningHandler(base, runner).RegisterRoutes(r)
	api.NewLockHandler(base, lockMgr).RegisterRoutes(r)
	api.NewChatHandler(base, gateway).RegisterRoutes(r)
	api.NewSettingsHandler(base, repo).RegisterRoutes(r)
	api.NewAgentHandler(base, repo).RegisterRoutes(r)
	api.NewTaskHandler(base, repo).RegisterRoutes(r)
	api.NewProjectHandler(base, repo).RegisterRoutes(r)

	// Event streams.
	r.Get("/api/events", hub.ServeSSE)
	r.Get("/ws/events", wsHandler.ServeHTTP)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	// SSE and WebSocket streams are long-lived, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	sweeper := locks.StartSweeper(ctx, lockMgr, cfg.LockSweepInterval, cfg.LockStaleTimeout, logger)
	slog.Info("Lock sweeper started", "interval", cfg.LockSweepInterval, "stale_timeout", cfg.LockStaleTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-sweeper.Done()
		slog.Info("Lock sweeper stopped")
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Streams block Shutdown until their subscriptions end.
		hub.Close()
		err := srv.Shutdown(shutdownCtx)
		sweeper.Stop()
		return err
	})

	err = g.Wait()
	stop()
	runner.Wait()
	return err
}

func seedSource(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
