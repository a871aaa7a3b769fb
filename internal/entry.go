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

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/difflog"
	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/history"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/memory"
	"github.com/starford/ansuz/internal/monitor"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/reasoner"
	"github.com/starford/ansuz/internal/reflector"
	"github.com/starford/ansuz/internal/refine"
	"github.com/starford/ansuz/internal/selector"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{mode: ModeServe}

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
		slog.String("mode", app.mode),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("playbook_root", cfg.Playbook.Root),
		slog.Bool("ace_enabled", cfg.ACE.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize storage and load the store. Corruption aborts here.
	prov, err := storage.NewFS(cfg.Playbook.Root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	store, err := playbook.NewStore(prov)
	if err != nil {
		return fmt.Errorf("init playbook store: %w", err)
	}

	sel := selector.New(store, cfg.ACE.Weights)

	// Rebuild the history index from the replayed diff log.
	dlog := difflog.New(prov)
	hist, err := history.Open(cfg.Playbook.HistoryDB)
	if err != nil {
		return fmt.Errorf("init history index: %w", err)
	}
	defer hist.Close()
	entries, err := dlog.Replay()
	if err != nil {
		return fmt.Errorf("replay diff log: %w", err)
	}
	if err := hist.Rebuild(entries); err != nil {
		return fmt.Errorf("rebuild history index: %w", err)
	}

	if app.mode == ModeMCP {
		logger.Info("Serving MCP over stdio")
		return mcpserver.New(store, sel, hist).ServeStdio()
	}

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	var eng *engine.Engine
	if app.mode == ModeServe {
		cur := curator.New(store, dlog, hist, broker.PublishDeltaEvent, logger, curator.Config{
			DefaultConfidence: cfg.Playbook.DefaultConfidence,
			MergeSeparator:    cfg.Playbook.MergeSeparator,
			MaxPerTurn:        cfg.ACE.MaxDeltasPerTurn,
		})
		ref := refine.New(store, cur, cfg.ACE.Retention, cfg.ACE.MergePool, logger)
		adapter := reflector.NewAdapter(cfg.ACE.MaxDeltasPerTurn)

		rsn := app.reasoner
		if rsn == nil && cfg.Reasoner.Mode == ReasonerModeExec {
			rsn = reasoner.NewExecClient(cfg.Reasoner.Binary, cfg.Reasoner.Model,
				time.Duration(cfg.Reasoner.TimeoutSeconds)*time.Second)
		}

		var mem *memory.Manager
		if !cfg.ACE.Enabled {
			memProv, err := storage.NewFS(cfg.Memory.Root)
			if err != nil {
				return fmt.Errorf("init memory storage: %w", err)
			}
			mem = memory.NewManager(memProv)
		}

		eng = engine.New(engine.Config{
			Enabled:          cfg.ACE.Enabled,
			RefineInterval:   cfg.ACE.RefineInterval,
			MaxSections:      cfg.ACE.MaxSections,
			ContextFragments: cfg.ACE.ContextFragments,
			ContextChars:     cfg.ACE.ContextChars,
		}, store, cur, sel, ref, adapter, rsn, mem, logger)
	}

	// Build API router.
	handler := api.NewHandler(store, hist, sel, eng)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Monitor mode follows another run's store through the watcher.
	if app.mode == ModeMonitor {
		g.Go(func() error {
			return monitor.Watch(gCtx, store, prov, prov.Root(), logger, func(kind, file string) {
				broker.Publish(sse.Event{Type: "playbook." + kind, Data: map[string]string{"file": file}})
			})
		})
	}

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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
