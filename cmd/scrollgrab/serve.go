package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/scrollgrab/api"
	"github.com/use-agent/scrollgrab/cache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the harvest pipeline as an HTTP API",
	Long: `Starts an HTTP server with POST /api/v1/harvest and GET /api/v1/health.
Each harvest request runs a full pipeline into a fresh directory under
the configured output root. Concurrency is capped by SCROLLGRAB_MAX_RUNS.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.Info("scrollgrab starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxRuns", cfg.Server.MaxRuns,
		"outputRoot", cfg.Server.OutputRoot,
	)

	// ── 1. Output root ──────────────────────────────────────────────
	if err := os.MkdirAll(cfg.Server.OutputRoot, 0o755); err != nil {
		return fmt.Errorf("create output root %q: %w", cfg.Server.OutputRoot, err)
	}

	// ── 2. Response cache ───────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries)

	// ── 3. Router ───────────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(cfg, cc, api.PipelineRunner(), startTime)

	// ── 4. HTTP server ──────────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// ── 5. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	// Give in-flight requests 5 seconds to complete. Active pipeline runs
	// are canceled through their request contexts.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("scrollgrab stopped")
	return nil
}
