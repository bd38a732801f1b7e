// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/paravault/internal/api"
	"github.com/starford/paravault/internal/mcpserver"
	"github.com/starford/paravault/internal/metrics"
	"github.com/starford/paravault/internal/models"
	"github.com/starford/paravault/internal/noteservice"
	"github.com/starford/paravault/internal/para"
	"github.com/starford/paravault/internal/search"
	"github.com/starford/paravault/internal/sse"
	"github.com/starford/paravault/internal/storage"
	"github.com/starford/paravault/internal/watcher"
)

// newLogger builds the JSON logger. MCP speaks its protocol on stdout, so
// logs go to stderr in that mode.
func newLogger(cfg *Config) *slog.Logger {
	var w io.Writer = os.Stdout
	if cfg.App.Transport == TransportMCP {
		w = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// openVault makes sure the vault root and its category directories exist.
func openVault(cfg *Config) (*para.Resolver, error) {
	for _, c := range models.Categories {
		if err := os.MkdirAll(filepath.Join(cfg.Vault.Path, string(c)), 0o755); err != nil {
			return nil, fmt.Errorf("create vault dir: %w", err)
		}
	}
	return para.NewResolver(cfg.Vault.Path)
}

// newService builds the note service from configuration and loads the vault.
func newService(ctx context.Context, cfg *Config, logger *slog.Logger, extra ...noteservice.Option) (*noteservice.Service, *para.Resolver, error) {
	paths, err := openVault(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := []noteservice.Option{
		noteservice.WithLogger(logger),
		noteservice.WithLoadWorkers(cfg.Load.Workers),
		noteservice.WithLockTimeout(cfg.Locks.Timeout),
		noteservice.WithGraphLimits(cfg.Graph.MaxDepth, cfg.Graph.MaxNodes),
		noteservice.WithSearchOptions(
			search.WithPageSize(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
			search.WithSnippetRadius(cfg.Search.SnippetRadius),
		),
	}
	svc := noteservice.NewService(storage.NewFS(paths), paths, append(opts, extra...)...)

	rep, err := svc.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load vault: %w", err)
	}
	for _, f := range rep.Failures {
		logger.Warn("document not loaded", slog.String("path", f.Path), slog.String("kind", f.Kind), slog.String("error", f.Error))
	}
	return svc, paths, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("transport", cfg.App.Transport),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("snapshot_path", cfg.Snapshot.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Change stream and metrics.
	broker := sse.NewBroker(cfg.Events.GraphThrottle)
	defer broker.Close()
	prom := metrics.NewPrometheus()

	svc, paths, err := newService(ctx, cfg, logger,
		noteservice.WithMetrics(prom),
		noteservice.WithNotifier(broker),
	)
	if err != nil {
		return err
	}

	if cfg.Snapshot.ExportOnStart {
		n, err := svc.ExportSnapshot(ctx, cfg.Snapshot.Path, cfg.Snapshot.IncludeDrafts)
		if err != nil {
			logger.Warn("initial snapshot export failed", slog.String("error", err.Error()))
		} else {
			logger.Info("snapshot exported", slog.String("path", cfg.Snapshot.Path), slog.Int("documents", n))
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Vault.Watch {
		g.Go(func() error {
			return watcher.Watch(gCtx, svc, paths, logger, nil)
		})
	}

	if cfg.App.Transport == TransportMCP {
		g.Go(func() error {
			defer cancel()
			logger.Info("Starting MCP server on stdio")
			return mcpserver.New(svc, app.version).ServeStdio()
		})
	} else {
		runHTTP(g, gCtx, cancel, cfg, logger, svc, broker, prom)
	}

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func runHTTP(g *errgroup.Group, gCtx context.Context, stop context.CancelFunc, cfg *Config, logger *slog.Logger, svc *noteservice.Service, broker *sse.Broker, prom *metrics.Prometheus) {
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, cfg.Snapshot.Path)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", prom.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

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
		defer signal.Stop(quit)

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
		// The watcher runs until the run context ends.
		stop()
		return nil
	})
}

// Export loads the vault and writes the renderer snapshot without serving.
func Export(ctx context.Context, opts ...Option) (int, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return 0, fmt.Errorf("config is required")
	}
	cfg := app.config
	if cfg.Snapshot.Path == "" {
		return 0, fmt.Errorf("snapshot.path is not configured")
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	svc, _, err := newService(ctx, cfg, logger)
	if err != nil {
		return 0, err
	}
	return svc.ExportSnapshot(ctx, cfg.Snapshot.Path, cfg.Snapshot.IncludeDrafts)
}
