// Package resolver maps arbitrary user-supplied links or short reference
// codes to canonical records, fetching on demand when the store has no match.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/canonical"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/storage"
)

// Typed resolution failures, surfaced verbatim to callers and never
// auto-retried.
var (
	ErrUnsupportedSource = errors.New("resolver: unsupported source")
	ErrNotFound          = errors.New("resolver: product not found")
	ErrColorUnavailable  = errors.New("resolver: color unavailable")
)

// Store is the persistence surface the resolver needs.
type Store interface {
	ProductByCanonicalID(source string, canonicalID int64) (storage.CanonicalProduct, error)
	ProductByReference(source, reference string) (storage.CanonicalProduct, error)
	UpsertProducts(key catalog.UniquenessKey, records []storage.CanonicalProduct) error
}

// DetailClient fetches single identities on demand. Satisfied by
// *catalog.Client.
type DetailClient interface {
	Source() catalog.Source
	ProductDetails(ctx context.Context, ids []int64) ([]catalog.RawProduct, error)
}

// Resolver is source-agnostic: adding a source means registering its domain
// matcher, link rule, and client in the registry, not touching this code.
type Resolver struct {
	registry *catalog.Registry
	store    Store
	clients  map[string]DetailClient
	logger   *slog.Logger
}

// New creates a Resolver. clients maps source id to its detail client; a
// source without a client can still be resolved from the store but not
// fetched on demand.
func New(registry *catalog.Registry, store Store, clients map[string]DetailClient) *Resolver {
	return &Resolver{
		registry: registry,
		store:    store,
		clients:  clients,
		logger:   slog.Default(),
	}
}

// Resolve maps input — a marketing URL or a short reference code — to one
// canonical record.
func (r *Resolver) Resolve(ctx context.Context, input string) (storage.CanonicalProduct, error) {
	input = strings.TrimSpace(input)

	if catalog.IsReferenceCode(input) {
		return r.resolveReference(input)
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return storage.CanonicalProduct{}, fmt.Errorf("%w: %q", ErrUnsupportedSource, input)
	}

	src, link, matched, ok := r.registry.Match(u)
	if !matched {
		return storage.CanonicalProduct{}, fmt.Errorf("%w: %s", ErrUnsupportedSource, u.Hostname())
	}
	if !ok {
		return storage.CanonicalProduct{}, fmt.Errorf("%w: no product id in %q", ErrNotFound, input)
	}

	rec, err := r.locate(ctx, src, link.ProductID)
	if err != nil {
		return storage.CanonicalProduct{}, err
	}

	// A secondary color id that differs from the located record's own color
	// re-resolves through the sibling map.
	if link.ColorID != "" && link.ColorID != rec.ColorID {
		sibling, ok := rec.Siblings[link.ColorID]
		if !ok {
			return storage.CanonicalProduct{}, fmt.Errorf("%w: color %s", ErrColorUnavailable, link.ColorID)
		}
		rec, err = r.store.ProductByCanonicalID(src.ID, sibling)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.CanonicalProduct{}, fmt.Errorf("%w: sibling %d", ErrNotFound, sibling)
		}
		if err != nil {
			return storage.CanonicalProduct{}, err
		}
	}

	return rec, nil
}

// resolveReference probes each source's store in registry priority order;
// the first hit wins.
func (r *Resolver) resolveReference(input string) (storage.CanonicalProduct, error) {
	ref, ok := catalog.CanonicalizeReferenceCode(input)
	if !ok {
		return storage.CanonicalProduct{}, fmt.Errorf("%w: %q", ErrNotFound, input)
	}

	for _, src := range r.registry.Sources() {
		rec, err := r.store.ProductByReference(src.ID, ref)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.CanonicalProduct{}, fmt.Errorf("probing %s: %w", src.ID, err)
		}
	}
	return storage.CanonicalProduct{}, fmt.Errorf("%w: reference %s", ErrNotFound, ref)
}

// locate finds the identity in the source's store, falling back to an
// on-demand single-identity fetch that persists what it finds.
func (r *Resolver) locate(ctx context.Context, src catalog.Source, productID int64) (storage.CanonicalProduct, error) {
	rec, err := r.store.ProductByCanonicalID(src.ID, productID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.CanonicalProduct{}, err
	}

	recs, err := r.fetchOne(ctx, src, productID)
	if err != nil {
		return storage.CanonicalProduct{}, err
	}

	// Prefer the variant carrying the requested identity; a multi-color
	// product may canonicalize under sibling ids.
	for _, rec := range recs {
		if rec.CanonicalID == productID {
			return rec, nil
		}
	}
	return recs[0], nil
}

// fetchOne reuses the chunked-fetch and canonicalization paths restricted to
// a single identity and persists the result.
func (r *Resolver) fetchOne(ctx context.Context, src catalog.Source, productID int64) ([]storage.CanonicalProduct, error) {
	client, ok := r.clients[src.ID]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}

	raws, err := client.ProductDetails(ctx, []int64{productID})
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
		}
		return nil, fmt.Errorf("fetching product %d: %w", productID, err)
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: product %d delisted", ErrNotFound, productID)
	}

	recs, drops := canonical.Expand(src, raws[0], 0)
	if len(recs) == 0 {
		r.logger.Warn("on-demand fetch produced no variants",
			"source", src.ID, "product", productID, "dropped", drops.Total())
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}

	if err := r.store.UpsertProducts(src.Uniqueness, recs); err != nil {
		return nil, fmt.Errorf("persisting product %d: %w", productID, err)
	}
	return recs, nil
}
