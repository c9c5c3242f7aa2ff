package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/api"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/config"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/pipeline"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/progress"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/resolver"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/storage"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/tracking"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "discountd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the engine: one client and orchestrator per source.
	registry := catalog.DefaultRegistry()
	tracker := progress.NewTracker()

	var orchestrators []*pipeline.Orchestrator
	clients := make(map[string]resolver.DetailClient)
	for _, src := range registry.Sources() {
		src = applyScrapeOverrides(src, cfg.Scrape)
		client := catalog.NewClient(src, nil)
		clients[src.ID] = client
		orchestrators = append(orchestrators, pipeline.New(client, store, tracker, cfg.Scrape.BatchSize))
	}
	runner := pipeline.NewRunner(orchestrators...)

	res := resolver.New(registry, store, clients)
	trackingSvc := tracking.New(store, res, cfg.Tracking.Capacity, cfg.Tracking.CacheTTL)

	handler := api.NewHandler(api.Deps{
		Registry:    registry,
		Runner:      runner,
		Tracker:     tracker,
		Tracking:    trackingSvc,
		Resolver:    res,
		Token:       cfg.API.Token,
		ImageHosts:  cfg.Image.AllowedHosts,
		ImageMaxAge: cfg.Image.MaxAge,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Bind, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.WithBaseContext(ctx)(handler),
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "discountd listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// applyScrapeOverrides layers configured pacing over a source's built-in
// tuning; zero values keep the source default.
func applyScrapeOverrides(src catalog.Source, sc config.ScrapeConfig) catalog.Source {
	if sc.CategoryDelay > 0 {
		src.CategoryDelay = sc.CategoryDelay
	}
	if sc.ChunkDelay > 0 {
		src.ChunkDelay = sc.ChunkDelay
	}
	if sc.RetryBudget > 0 {
		src.RetryBudget = sc.RetryBudget
	}
	if sc.RetryBackoff > 0 {
		src.RetryBackoff = sc.RetryBackoff
	}
	if sc.RequestTimeout > 0 {
		src.RequestTimeout = sc.RequestTimeout
	}
	return src
}
