package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
)

type fakeDetailClient struct {
	src catalog.Source
	// respond is invoked per request with the 1-based attempt counter across
	// all chunks.
	respond func(call int, ids []int64) ([]catalog.RawProduct, error)
	calls   [][]int64
}

func (f *fakeDetailClient) Source() catalog.Source { return f.src }

func (f *fakeDetailClient) ProductDetails(ctx context.Context, ids []int64) ([]catalog.RawProduct, error) {
	f.calls = append(f.calls, append([]int64(nil), ids...))
	return f.respond(len(f.calls), ids)
}

func okResponse(call int, ids []int64) ([]catalog.RawProduct, error) {
	out := make([]catalog.RawProduct, 0, len(ids))
	for _, id := range ids {
		out = append(out, catalog.RawProduct{ID: id})
	}
	return out, nil
}

func newTestFetcher(client *fakeDetailClient) *Fetcher {
	f := New(client)
	f.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return f
}

func ids(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

func TestChunk(t *testing.T) {
	chunks := Chunk(ids(250), 100)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	sizes := []int{len(chunks[0]), len(chunks[1]), len(chunks[2])}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Errorf("chunk sizes = %v, want [100 100 50]", sizes)
	}
	if chunks[0][0] != 1 || chunks[2][49] != 250 {
		t.Error("chunking must preserve order")
	}

	if got := Chunk(nil, 100); got != nil {
		t.Errorf("Chunk(nil) = %v, want nil", got)
	}
	if got := Chunk(ids(3), 0); len(got) != 3 {
		t.Errorf("non-positive size must fall back to 1, got %d chunks", len(got))
	}
}

func TestDetailsChunksAndOrder(t *testing.T) {
	client := &fakeDetailClient{
		src:     catalog.Source{ID: "zara", ChunkSize: 100, RetryBudget: 3},
		respond: okResponse,
	}
	f := newTestFetcher(client)

	var progress []int
	out, stats, err := f.Details(context.Background(), ids(250), func(chunk, covered int) {
		progress = append(progress, covered)
	})
	if err != nil {
		t.Fatalf("Details: %v", err)
	}

	if len(client.calls) != 3 {
		t.Fatalf("requests = %d, want 3", len(client.calls))
	}
	if stats.Chunks != 3 || stats.Attempts != 3 || stats.Requested != 250 || stats.Fetched != 250 {
		t.Errorf("stats = %+v", stats)
	}
	for i, p := range out {
		if p.ID != int64(i+1) {
			t.Fatalf("out[%d].ID = %d, order not preserved", i, p.ID)
		}
	}
	if len(progress) != 3 || progress[0] != 100 || progress[1] != 200 || progress[2] != 250 {
		t.Errorf("progress = %v, want [100 200 250]", progress)
	}
}

func TestDetailsRetriesThenSucceeds(t *testing.T) {
	retryable := &catalog.RequestError{StatusCode: 503, Retryable: true, Err: errors.New("503")}
	client := &fakeDetailClient{
		src: catalog.Source{ID: "zara", ChunkSize: 100, RetryBudget: 3},
		respond: func(call int, ids []int64) ([]catalog.RawProduct, error) {
			if call < 3 {
				return nil, retryable
			}
			return okResponse(call, ids)
		},
	}
	f := newTestFetcher(client)

	out, stats, err := f.Details(context.Background(), ids(10), nil)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if stats.Attempts != 3 || stats.FailedChunks != 0 {
		t.Errorf("stats = %+v, want 3 attempts and no failed chunks", stats)
	}
	if len(out) != 10 {
		t.Errorf("fetched = %d, want 10", len(out))
	}
}

func TestDetailsRetryBudgetBounded(t *testing.T) {
	retryable := &catalog.RequestError{StatusCode: 503, Retryable: true, Err: errors.New("503")}
	client := &fakeDetailClient{
		src: catalog.Source{ID: "zara", ChunkSize: 100, RetryBudget: 3},
		respond: func(int, []int64) ([]catalog.RawProduct, error) {
			return nil, retryable
		},
	}
	f := newTestFetcher(client)

	out, stats, err := f.Details(context.Background(), ids(10), nil)
	if err != nil {
		t.Fatalf("a failed chunk must not abort the run: %v", err)
	}
	if stats.Attempts != 3 {
		t.Errorf("attempts = %d, want exactly the retry budget", stats.Attempts)
	}
	if stats.FailedChunks != 1 || len(out) != 0 {
		t.Errorf("stats = %+v, out = %d", stats, len(out))
	}
}

func TestDetailsTerminalErrorStopsRetrying(t *testing.T) {
	terminal := &catalog.RequestError{StatusCode: 403, Err: errors.New("403")}
	client := &fakeDetailClient{
		src: catalog.Source{ID: "zara", ChunkSize: 100, RetryBudget: 3},
		respond: func(int, []int64) ([]catalog.RawProduct, error) {
			return nil, terminal
		},
	}
	f := newTestFetcher(client)

	_, stats, err := f.Details(context.Background(), ids(10), nil)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if stats.Attempts != 1 {
		t.Errorf("attempts = %d, terminal errors must not be retried", stats.Attempts)
	}
}

func TestDetailsFailedChunkSkipped(t *testing.T) {
	retryable := &catalog.RequestError{StatusCode: 503, Retryable: true, Err: errors.New("503")}
	client := &fakeDetailClient{
		src: catalog.Source{ID: "zara", ChunkSize: 5, RetryBudget: 2},
		respond: func(call int, reqIDs []int64) ([]catalog.RawProduct, error) {
			// Second chunk (ids 6..10) never succeeds.
			if reqIDs[0] == 6 {
				return nil, retryable
			}
			return okResponse(call, reqIDs)
		},
	}
	f := newTestFetcher(client)

	out, stats, err := f.Details(context.Background(), ids(15), nil)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if stats.Chunks != 3 || stats.FailedChunks != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(out) != 10 {
		t.Fatalf("fetched = %d, want the two surviving chunks", len(out))
	}
	// The third chunk's products follow the first chunk's in order.
	if out[4].ID != 5 || out[5].ID != 11 {
		t.Errorf("order broken around the skipped chunk: %d then %d", out[4].ID, out[5].ID)
	}
}

func TestDetailsToleratesShortChunk(t *testing.T) {
	client := &fakeDetailClient{
		src: catalog.Source{ID: "zara", ChunkSize: 5, RetryBudget: 1},
		respond: func(call int, reqIDs []int64) ([]catalog.RawProduct, error) {
			// One identity was delisted upstream.
			out, _ := okResponse(call, reqIDs)
			return out[:len(out)-1], nil
		},
	}
	f := newTestFetcher(client)

	out, stats, err := f.Details(context.Background(), ids(10), nil)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if stats.Requested != 10 || stats.Fetched != 8 {
		t.Errorf("stats = %+v, want 10 requested / 8 fetched", stats)
	}
	if len(out) != 8 {
		t.Errorf("out = %d, want 8", len(out))
	}
}

func TestDetailsContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeDetailClient{
		src:     catalog.Source{ID: "zara", ChunkSize: 100, RetryBudget: 3},
		respond: okResponse,
	}
	f := newTestFetcher(client)

	if _, _, err := f.Details(ctx, ids(10), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("no requests after cancellation, got %d", len(client.calls))
	}
}

func TestDetailsEmptyInput(t *testing.T) {
	client := &fakeDetailClient{
		src:     catalog.Source{ID: "zara", ChunkSize: 100, RetryBudget: 3},
		respond: okResponse,
	}
	f := newTestFetcher(client)

	out, stats, err := f.Details(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if len(out) != 0 || stats.Chunks != 0 || stats.Attempts != 0 {
		t.Errorf("empty input must issue no requests: %+v", stats)
	}
}
