// Package pipeline sequences discovery, fetching, canonicalization, and
// persistence into one scrape run per source, publishing progress ticks
// throughout.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/canonical"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/discovery"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/fetch"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/progress"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/storage"
)

// Stage is one state of the per-run state machine. Stages execute strictly
// in order; a failure transitions to StageFailed without rolling back
// batches already committed.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageDiscovering Stage = "discovering_categories"
	StageCollecting  Stage = "collecting_identities"
	StageFetching    Stage = "fetching_details"
	StagePersisting  Stage = "persisting"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// defaultBatchSize bounds records per store transaction.
const defaultBatchSize = 50

// Store is the persistence surface the orchestrator needs.
type Store interface {
	UpsertCategories(source string, cats []storage.Category) error
	CheckpointIdentities(source string, owners map[int64][]int64) error
	SetCategoryProductCount(source string, categoryID int64, count int) error
	LoadIdentities(source string) ([]storage.Identity, error)
	MarkIdentitiesProcessed(source string, productIDs []int64) error
	UpsertProducts(key catalog.UniquenessKey, records []storage.CanonicalProduct) error
}

// Summary reports a completed run.
type Summary struct {
	JobID                string
	Source               string
	TotalCategories      int
	SuccessfulCategories int
	UniqueIdentities     int
	DuplicateIdentities  int
	VariantsProcessed    int
	VariantsSaved        int
	Dropped              canonical.DropStats
	FailedChunks         int
	Duration             time.Duration
}

// Orchestrator runs the scrape pipeline for one source. A run is one logical
// sequential worker; independent sources run as separate Orchestrators.
type Orchestrator struct {
	src       catalog.Source
	client    *catalog.Client
	store     Store
	tracker   *progress.Tracker
	batchSize int
	logger    *slog.Logger
}

// New creates an Orchestrator. batchSize <= 0 selects the default.
func New(client *catalog.Client, store Store, tracker *progress.Tracker, batchSize int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	src := client.Source()
	return &Orchestrator{
		src:       src,
		client:    client,
		store:     store,
		tracker:   tracker,
		batchSize: batchSize,
		logger:    slog.Default().With("source", src.ID),
	}
}

// Source returns the source this orchestrator is bound to.
func (o *Orchestrator) Source() catalog.Source { return o.src }

// Run executes the full pipeline: discover categories, collect identities,
// fetch details, canonicalize, persist. jobID identifies the progress job;
// pass "" to generate one.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (Summary, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	start := time.Now()
	o.tracker.Start(jobID, o.src.ID, 0)

	sum, err := o.run(ctx, jobID)
	sum.JobID = jobID
	sum.Source = o.src.ID
	sum.Duration = time.Since(start)
	o.finish(jobID, sum, err)
	return sum, err
}

// RunDetails executes the details-only entry point: identities already
// persisted by a previous run are re-fetched, canonicalized, and upserted.
func (o *Orchestrator) RunDetails(ctx context.Context, jobID string) (Summary, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}
	start := time.Now()
	o.tracker.Start(jobID, o.src.ID, 0)

	var sum Summary
	identities, err := o.store.LoadIdentities(o.src.ID)
	if err != nil {
		err = fmt.Errorf("loading identities: %w", err)
	} else {
		ids := make([]int64, len(identities))
		owners := make(map[int64][]int64, len(identities))
		for i, ident := range identities {
			ids[i] = ident.ProductID
			owners[ident.ProductID] = ident.CategoryIDs
		}
		sum.UniqueIdentities = len(ids)
		sum, err = o.fetchAndPersist(ctx, jobID, sum, ids, owners)
	}

	sum.JobID = jobID
	sum.Source = o.src.ID
	sum.Duration = time.Since(start)
	o.finish(jobID, sum, err)
	return sum, err
}

func (o *Orchestrator) run(ctx context.Context, jobID string) (Summary, error) {
	var sum Summary

	// DiscoveringCategories.
	o.setStage(jobID, StageDiscovering)
	disc := discovery.New(o.client, o.store)
	cats, err := disc.Categories(ctx)
	if err != nil {
		return sum, fmt.Errorf("discovering categories: %w", err)
	}
	if err := o.store.UpsertCategories(o.src.ID, cats); err != nil {
		return sum, fmt.Errorf("persisting categories: %w", err)
	}
	sum.TotalCategories = len(cats)

	// CollectingIdentities.
	o.setStage(jobID, StageCollecting)
	res, err := disc.CollectIdentities(ctx, cats)
	if err != nil {
		return sum, fmt.Errorf("collecting identities: %w", err)
	}
	sum.SuccessfulCategories = res.Tally.Succeeded
	sum.UniqueIdentities = len(res.IDs)
	sum.DuplicateIdentities = res.Tally.Duplicates

	return o.fetchAndPersist(ctx, jobID, sum, res.IDs, res.Owners)
}

// fetchAndPersist runs the FetchingDetails and Persisting stages shared by
// both entry points.
func (o *Orchestrator) fetchAndPersist(ctx context.Context, jobID string, sum Summary, ids []int64, owners map[int64][]int64) (Summary, error) {
	o.tracker.SetTotal(jobID, len(ids))

	// FetchingDetails: a tick after every chunk.
	o.setStage(jobID, StageFetching)
	fetcher := fetch.New(o.client)
	totalChunks := len(fetch.Chunk(ids, o.src.ChunkSize))
	lastCovered := 0
	raws, fstats, err := fetcher.Details(ctx, ids, func(chunk, covered int) {
		o.tracker.IncrementProcessed(jobID, covered-lastCovered)
		lastCovered = covered
		o.tracker.SetCurrentCategory(jobID, fmt.Sprintf("chunk %d/%d", chunk, totalChunks))
	})
	if err != nil {
		return sum, fmt.Errorf("fetching details: %w", err)
	}
	sum.FailedChunks = fstats.FailedChunks

	// Persisting: canonicalize, then batched transactional upserts with a
	// tick after every batch.
	o.setStage(jobID, StagePersisting)
	var records []storage.CanonicalProduct
	var processedIDs []int64
	for _, raw := range raws {
		recs, drops := canonical.Expand(o.src, raw, primaryCategory(owners, raw.ID))
		sum.Dropped.Add(drops)
		sum.VariantsProcessed += len(recs) + drops.Total()
		records = append(records, recs...)
		processedIDs = append(processedIDs, raw.ID)
	}

	batches := batchRecords(records, o.batchSize)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := o.store.UpsertProducts(o.src.Uniqueness, batch); err != nil {
			return sum, fmt.Errorf("persisting batch %d/%d: %w", i+1, len(batches), err)
		}
		sum.VariantsSaved += len(batch)
		o.tracker.IncrementSaved(jobID, len(batch))
		o.tracker.SetCurrentCategory(jobID, fmt.Sprintf("batch %d/%d", i+1, len(batches)))
	}

	if err := o.store.MarkIdentitiesProcessed(o.src.ID, processedIDs); err != nil {
		return sum, fmt.Errorf("marking identities processed: %w", err)
	}

	return sum, nil
}

func (o *Orchestrator) setStage(jobID string, stage Stage) {
	o.tracker.SetCurrentCategory(jobID, string(stage))
	o.logger.Info("stage", "job", jobID, "stage", stage)
}

func (o *Orchestrator) finish(jobID string, sum Summary, err error) {
	if err != nil {
		o.logger.Error("run failed", "job", jobID, "error", err)
		o.tracker.Fail(jobID, err)
		return
	}
	o.logger.Info("run completed",
		"job", jobID,
		"categories", sum.TotalCategories,
		"categories_ok", sum.SuccessfulCategories,
		"unique_identities", sum.UniqueIdentities,
		"duplicate_identities", sum.DuplicateIdentities,
		"variants_processed", sum.VariantsProcessed,
		"variants_saved", sum.VariantsSaved,
		"dropped", sum.Dropped.Total(),
		"failed_chunks", sum.FailedChunks,
		"duration", sum.Duration,
	)
	o.tracker.Complete(jobID)
}

// primaryCategory picks the first owning category for a product id.
func primaryCategory(owners map[int64][]int64, productID int64) int64 {
	if cats := owners[productID]; len(cats) > 0 {
		return cats[0]
	}
	return 0
}

func batchRecords(records []storage.CanonicalProduct, size int) [][]storage.CanonicalProduct {
	var batches [][]storage.CanonicalProduct
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
