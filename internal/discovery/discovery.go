// Package discovery flattens a source's category tree and collects the
// deduplicated set of product identities it contains.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/storage"
)

// checkpointEvery is the number of categories between identity checkpoints;
// a long run can be resumed from the last checkpoint.
const checkpointEvery = 50

// TreeClient is the subset of the catalog client discovery needs.
type TreeClient interface {
	Source() catalog.Source
	CategoryTree(ctx context.Context) (catalog.CategoryTree, error)
	CategoryProducts(ctx context.Context, categoryID int64) ([]int64, error)
}

// CheckpointStore persists discovery progress.
type CheckpointStore interface {
	CheckpointIdentities(source string, owners map[int64][]int64) error
	SetCategoryProductCount(source string, categoryID int64, count int) error
}

// Tally is the per-category success/failure outcome of identity collection.
type Tally struct {
	Categories int
	Succeeded  int
	Failed     int
	// Duplicates counts ids seen in more than one category.
	Duplicates int
}

// Result is the outcome of a full identity collection pass.
type Result struct {
	// IDs is the deduplicated identity list in first-seen order.
	IDs []int64
	// Owners maps each identity to the categories it was seen in.
	Owners map[int64][]int64
	Tally  Tally
}

// Discoverer walks one source's category tree and id listings.
type Discoverer struct {
	client TreeClient
	store  CheckpointStore
	logger *slog.Logger

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Discoverer for the client's source.
func New(client TreeClient, store CheckpointStore) *Discoverer {
	return &Discoverer{
		client: client,
		store:  store,
		logger: slog.Default().With("source", client.Source().ID),
		sleep:  sleepCtx,
	}
}

// Categories fetches and flattens the category tree into leaf nodes,
// excluding nodes whose name marks them as marketing/landing pages.
func (d *Discoverer) Categories(ctx context.Context) ([]storage.Category, error) {
	tree, err := d.client.CategoryTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching category tree: %w", err)
	}

	src := d.client.Source()
	var out []storage.Category
	for _, root := range tree.Categories {
		flatten(src, root, root.SectionName, &out)
	}

	d.logger.Info("categories discovered", "count", len(out))
	return out, nil
}

func flatten(src catalog.Source, node catalog.RawCategory, path string, out *[]storage.Category) {
	if skipCategory(src, node) {
		return
	}
	if len(node.Subcategories) == 0 {
		*out = append(*out, storage.Category{
			Source: src.ID,
			ID:     node.ID,
			Name:   node.Name,
			Path:   path + " / " + node.Name,
			Active: true,
		})
		return
	}
	for _, child := range node.Subcategories {
		flatten(src, child, path+" / "+node.Name, out)
	}
}

func skipCategory(src catalog.Source, node catalog.RawCategory) bool {
	// Marketing layouts never list products.
	if node.Layout == "marketing" || node.Layout == "landing" {
		return true
	}
	name := strings.ToLower(node.Name)
	for _, skip := range src.SkipCategoryNames {
		if strings.Contains(name, skip) {
			return true
		}
	}
	return false
}

// CollectIdentities issues one id-listing request per category, accumulating
// a deduplicated identity set. A 404 on a single category means zero
// products, not an error; other failures are logged, counted, and skipped.
// Every checkpointEvery categories the accumulated (identity -> categories)
// mappings are persisted. A fixed delay follows every request.
func (d *Discoverer) CollectIdentities(ctx context.Context, cats []storage.Category) (Result, error) {
	src := d.client.Source()
	res := Result{Owners: make(map[int64][]int64)}
	res.Tally.Categories = len(cats)

	pending := make(map[int64][]int64)

	for i, cat := range cats {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ids, err := d.client.CategoryProducts(ctx, cat.ID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			// Empty category; still a success.
			ids = nil
		case err != nil:
			d.logger.Warn("category listing failed", "category", cat.ID, "error", err)
			res.Tally.Failed++
			if err := d.sleep(ctx, src.CategoryDelay); err != nil {
				return res, err
			}
			continue
		}
		res.Tally.Succeeded++

		for _, id := range ids {
			if _, seen := res.Owners[id]; seen {
				res.Tally.Duplicates++
			} else {
				res.IDs = append(res.IDs, id)
			}
			res.Owners[id] = append(res.Owners[id], cat.ID)
			pending[id] = append(pending[id], cat.ID)
		}

		if d.store != nil {
			if err := d.store.SetCategoryProductCount(src.ID, cat.ID, len(ids)); err != nil {
				d.logger.Warn("recording category count failed", "category", cat.ID, "error", err)
			}
			if (i+1)%checkpointEvery == 0 {
				if err := d.store.CheckpointIdentities(src.ID, pending); err != nil {
					return res, fmt.Errorf("checkpointing identities: %w", err)
				}
				pending = make(map[int64][]int64)
			}
		}

		if err := d.sleep(ctx, src.CategoryDelay); err != nil {
			return res, err
		}
	}

	if d.store != nil && len(pending) > 0 {
		if err := d.store.CheckpointIdentities(src.ID, pending); err != nil {
			return res, fmt.Errorf("checkpointing identities: %w", err)
		}
	}

	d.logger.Info("identities collected",
		"unique", len(res.IDs),
		"duplicates", res.Tally.Duplicates,
		"failed_categories", res.Tally.Failed,
	)
	return res, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
