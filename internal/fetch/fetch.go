// Package fetch batches product identities into bounded-size detail requests
// with retry, fixed backoff, and inter-chunk pacing.
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
)

// DetailClient is the subset of the catalog client the fetcher needs.
type DetailClient interface {
	Source() catalog.Source
	ProductDetails(ctx context.Context, ids []int64) ([]catalog.RawProduct, error)
}

// Stats summarizes one fetch pass.
type Stats struct {
	Chunks       int
	FailedChunks int
	Requested    int
	Fetched      int
	// Attempts is the total number of detail requests issued, including
	// retries.
	Attempts int
}

// Progress is invoked after every chunk, successful or not, with the number
// of identities covered so far and the 1-based chunk index.
type Progress func(chunk, covered int)

// Fetcher fetches product details in chunks for one source.
type Fetcher struct {
	client DetailClient
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher for the client's source.
func New(client DetailClient) *Fetcher {
	return &Fetcher{
		client: client,
		logger: slog.Default().With("source", client.Source().ID),
		sleep:  sleepCtx,
	}
}

// Chunk splits ids into order-preserving chunks of at most size.
func Chunk(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = 1
	}
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// Details fetches the details for ids in ⌈N/K⌉ chunks, preserving order.
// A chunk is attempted up to the source's retry budget with a fixed backoff;
// after that it is skipped and counted, never aborting the run. A fixed
// inter-chunk delay is enforced between chunks. The returned slice holds the
// concatenation of all successfully fetched details, which may be shorter
// than requested when identities are delisted upstream.
func (f *Fetcher) Details(ctx context.Context, ids []int64, onProgress Progress) ([]catalog.RawProduct, Stats, error) {
	src := f.client.Source()
	chunks := Chunk(ids, src.ChunkSize)

	stats := Stats{Chunks: len(chunks), Requested: len(ids)}
	var out []catalog.RawProduct
	covered := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return out, stats, err
		}

		products, err := f.fetchChunk(ctx, chunk, &stats)
		if err != nil {
			stats.FailedChunks++
			f.logger.Warn("chunk skipped after retries",
				"chunk", i+1, "size", len(chunk), "error", err)
		} else {
			out = append(out, products...)
			stats.Fetched += len(products)
		}

		covered += len(chunk)
		if onProgress != nil {
			onProgress(i+1, covered)
		}

		if i < len(chunks)-1 {
			if err := f.sleep(ctx, src.ChunkDelay); err != nil {
				return out, stats, err
			}
		}
	}

	return out, stats, nil
}

// fetchChunk issues one batched detail request with retries. A timeout or
// 5xx consumes one attempt; a terminal error stops retrying immediately.
func (f *Fetcher) fetchChunk(ctx context.Context, chunk []int64, stats *Stats) ([]catalog.RawProduct, error) {
	src := f.client.Source()
	budget := src.RetryBudget
	if budget <= 0 {
		budget = 1
	}

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		stats.Attempts++
		products, err := f.client.ProductDetails(ctx, chunk)
		if err == nil {
			return products, nil
		}
		lastErr = err

		if !catalog.IsRetryable(err) {
			break
		}
		if attempt < budget {
			if serr := f.sleep(ctx, src.RetryBackoff); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, lastErr
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
