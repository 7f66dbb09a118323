// Package main is the entrypoint for the segmenter API server.
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

	"github.com/kiranshivaraju/segmenter/internal/api"
	"github.com/kiranshivaraju/segmenter/internal/api/handler"
	"github.com/kiranshivaraju/segmenter/internal/api/response"
	"github.com/kiranshivaraju/segmenter/internal/config"
	"github.com/kiranshivaraju/segmenter/internal/controller"
	"github.com/kiranshivaraju/segmenter/internal/handle"
	"github.com/kiranshivaraju/segmenter/internal/log"
	"github.com/kiranshivaraju/segmenter/internal/segment"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	healthTimeout   = 3 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(log.NewJSON(os.Stdout, cfg.Log.Level))
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"segment_url", cfg.Segment.BaseURL,
		"segment_timeout", cfg.Segment.Timeout,
		"handle_store", cfg.Handles.Store,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the handle store
	store, closeStore, err := openStore(ctx, cfg.Handles)
	if err != nil {
		return err
	}
	defer closeStore()
	slog.Info("handle store ready", "store", cfg.Handles.Store)

	// 3. Build the submission controller
	registry := handle.NewRegistry(store, cfg.Handles.TTL)
	client := segment.NewHTTPClient(cfg.Segment.BaseURL, cfg.Segment.Timeout)
	ctrl := controller.New(client, registry)

	// 4. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler: healthHandler(client, registry),
		StateHandler:  handler.NewStateHandler(ctrl),
		SelectHandler: handler.NewSelectHandler(ctrl, cfg.Server.MaxUploadBytes),
		SubmitHandler: handler.NewSubmitHandler(ctrl),
		HandleHandler: handler.NewHandleHandler(registry),
	}

	// 5. Serve until a signal or a server error
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		ctrl.Close(shutdownCtx)
		if err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully", "live_handles", registry.Live())
	return nil
}

// openStore returns the configured blob store and a function releasing it.
func openStore(ctx context.Context, cfg config.HandleConfig) (handle.BlobStore, func(), error) {
	switch cfg.Store {
	case config.HandleStoreRedis:
		rs, err := handle.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis store: %w", err)
		}
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return rs, func() { rs.Close() }, nil
	default:
		return handle.NewMemoryStore(), func() {}, nil
	}
}

type healthChecker interface {
	Ready(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks segmentation service liveness and handle store connectivity.
func healthHandler(svc healthChecker, store pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		checks := map[string]string{
			"segmentation_service": "ok",
			"handle_store":         "ok",
		}

		if err := svc.Ready(ctx); err != nil {
			slog.WarnContext(ctx, "segmentation service not ready", "error", err)
			checks["segmentation_service"] = "degraded"
		}
		if err := store.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "handle store ping failed", "error", err)
			checks["handle_store"] = "degraded"
		}

		degraded := checks["segmentation_service"] != "ok" || checks["handle_store"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
