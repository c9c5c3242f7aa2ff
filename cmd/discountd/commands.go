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

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/config"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/pipeline"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/progress"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/storage"
)

// --- scrape ---

var scrapeDetailsOnly bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape <source|all>",
	Short: "Run the ingestion pipeline for one source, or all of them",
	Long: `Run the ingestion pipeline.

Examples:
  discountd scrape zara             full run: discovery + fetch + persist
  discountd scrape zara --details   re-fetch details for known identities
  discountd scrape all              full run for every source, concurrently`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrape(args[0], scrapeDetailsOnly)
	},
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeDetailsOnly, "details", false,
		"skip discovery and reuse already-discovered identities")
}

func runScrape(target string, detailsOnly bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	registry := catalog.DefaultRegistry()
	tracker := progress.NewTracker()

	var sourceIDs []string
	var orchestrators []*pipeline.Orchestrator
	for _, src := range registry.Sources() {
		if target != "all" && src.ID != target {
			continue
		}
		src = applyScrapeOverrides(src, cfg.Scrape)
		client := catalog.NewClient(src, nil)
		orchestrators = append(orchestrators, pipeline.New(client, store, tracker, cfg.Scrape.BatchSize))
		sourceIDs = append(sourceIDs, src.ID)
	}
	if len(sourceIDs) == 0 {
		return fmt.Errorf("unknown source %q (try 'discountd sources')", target)
	}

	mode := pipeline.ModeAll
	if detailsOnly {
		mode = pipeline.ModeDetails
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("scraping %s (%s)", strings.Join(sourceIDs, ", "), mode)

	runner := pipeline.NewRunner(orchestrators...)
	summaries, err := runner.Run(ctx, sourceIDs, mode)
	for _, sum := range summaries {
		if sum.Source == "" {
			continue
		}
		printStatus(sum.Source, "%d identities (%d dup), %d variants saved, %d dropped, %d failed chunks, %s",
			sum.UniqueIdentities, sum.DuplicateIdentities, sum.VariantsSaved,
			sum.Dropped.Total(), sum.FailedChunks, sum.Duration.Round(time.Second))
	}
	if err != nil {
		printError("scrape finished with errors: %v", err)
		return err
	}
	printSuccess("scrape completed")
	return nil
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured catalog sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, src := range catalog.DefaultRegistry().Sources() {
			fmt.Fprintf(os.Stdout, "%-14s %-14s key=%-13s chunk=%d\n",
				src.ID, src.Label, src.Uniqueness, src.ChunkSize)
		}
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://%s:%d", cfg.Server.Bind, cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on %s", serverURL)
		} else {
			printStatus("Server", "unhealthy (%d)", resp.StatusCode)
		}
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		printError("storage error: %v", err)
		return nil
	}
	defer store.Close()

	for _, src := range catalog.DefaultRegistry().Sources() {
		n, err := store.CountProducts(src.ID)
		if err != nil {
			printStatus(src.Label, "error: %v", err)
			continue
		}
		printStatus(src.Label, "%d canonical products", n)
	}
	return nil
}
