// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/munin/internal/api"
	"github.com/starford/munin/internal/drops"
	"github.com/starford/munin/internal/extract"
	"github.com/starford/munin/internal/ingest"
	"github.com/starford/munin/internal/ledger"
	"github.com/starford/munin/internal/mcpserver"
	"github.com/starford/munin/internal/sse"
	"github.com/starford/munin/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("drop_path", cfg.Drop.Path),
		slog.String("ledger_path", cfg.Ledger.Path),
		slog.String("model", cfg.AI.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure drop directory exists.
	if err := os.MkdirAll(cfg.Drop.Path, 0o755); err != nil {
		return fmt.Errorf("create drop dir: %w", err)
	}

	// Initialize drop-folder provider.
	provider, err := drops.NewDir(cfg.Drop.Path, cfg.Drop.Extensions)
	if err != nil {
		return fmt.Errorf("init drop provider: %w", err)
	}

	// Initialize the local ingest journal.
	journal, err := ledger.Open(cfg.Ledger.Path, cfg.Ledger.CacheSize)
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	defer journal.Close()

	// Connect to the note archive.
	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	archive, err := store.OpenMongo(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
	cancelConnect()
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = archive.Close(closeCtx)
	}()

	// Upstream extraction client.
	extractor, err := extract.New(cfg.AI.Endpoint, cfg.AI.Model, cfg.AI.Timeout.Std(), cfg.AI.MaxAttempts, logger)
	if err != nil {
		return fmt.Errorf("init extractor: %w", err)
	}

	// Ingestion pipeline with SSE notifications.
	pipe := ingest.New(provider, extractor, archive, journal, logger, ingest.Options{
		QuietPeriod:     cfg.Drop.QuietPeriod.Std(),
		Workers:         cfg.Drop.Workers,
		StorageAttempts: cfg.Mongo.StorageAttempts,
	})

	// SSE broker with throttled stats snapshots.
	broker := sse.NewBroker(2*time.Second, func() any { return pipe.Stats() })
	pipe.SetNotify(broker.PublishIngestEvent)

	// Build API service and router.
	svc := api.NewService(archive, provider, pipe.Stats)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := archive.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"archive unreachable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Run the pipeline core.
	g.Go(func() error {
		return pipe.Run(gCtx)
	})

	// Startup sweep: queue files that landed while we were down.
	g.Go(func() error {
		if err := ingest.Sweep(provider, journal, pipe, logger); err != nil {
			logger.Warn("startup sweep failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start the drop-folder watcher.
	g.Go(func() error {
		return ingest.Watch(gCtx, provider, pipe, logger)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		broker.Close()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server against the configured archive and
// drop folder. No HTTP server or pipeline runs in this mode: drops
// captured over MCP are picked up by the next main-process sweep or by
// its live watcher.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// MCP talks JSON-RPC over stdout, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Drop.Path, 0o755); err != nil {
		return fmt.Errorf("create drop dir: %w", err)
	}
	provider, err := drops.NewDir(cfg.Drop.Path, cfg.Drop.Extensions)
	if err != nil {
		return fmt.Errorf("init drop provider: %w", err)
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	archive, err := store.OpenMongo(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
	cancelConnect()
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = archive.Close(closeCtx)
	}()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(archive, provider).ServeStdio()
}
