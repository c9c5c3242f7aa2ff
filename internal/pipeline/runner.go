package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning is returned when a scrape is triggered for a source whose
// previous run has not finished.
var ErrAlreadyRunning = errors.New("pipeline: source already running")

// Mode selects a pipeline entry point.
type Mode string

const (
	// ModeAll runs discovery, fetch, and persist.
	ModeAll Mode = "all"
	// ModeDetails re-fetches and canonicalizes using already-discovered
	// identities.
	ModeDetails Mode = "details"
)

// ParseMode validates a mode string, defaulting empty to ModeAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeDetails:
		return ModeDetails, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Runner owns one Orchestrator per source and enforces one run per source at
// a time. Independent sources run concurrently; within a source the run is a
// single sequential worker.
type Runner struct {
	orchestrators map[string]*Orchestrator

	mu      sync.Mutex
	running map[string]bool
}

// NewRunner creates a Runner over the given orchestrators.
func NewRunner(orchestrators ...*Orchestrator) *Runner {
	r := &Runner{
		orchestrators: make(map[string]*Orchestrator, len(orchestrators)),
		running:       make(map[string]bool),
	}
	for _, o := range orchestrators {
		r.orchestrators[o.Source().ID] = o
	}
	return r
}

// Sources returns the ids of the sources this runner can scrape.
func (r *Runner) Sources() []string {
	out := make([]string, 0, len(r.orchestrators))
	for id := range r.orchestrators {
		out = append(out, id)
	}
	return out
}

// Start launches a run for one source in a new goroutine and returns its job
// id immediately. ErrAlreadyRunning is returned while a previous run for the
// same source is in flight.
func (r *Runner) Start(ctx context.Context, sourceID string, mode Mode) (string, error) {
	o, ok := r.orchestrators[sourceID]
	if !ok {
		return "", fmt.Errorf("unknown source %q", sourceID)
	}

	r.mu.Lock()
	if r.running[sourceID] {
		r.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	r.running[sourceID] = true
	r.mu.Unlock()

	jobID := uuid.NewString()
	go func() {
		defer func() {
			r.mu.Lock()
			r.running[sourceID] = false
			r.mu.Unlock()
		}()
		r.execute(ctx, o, mode, jobID)
	}()
	return jobID, nil
}

// Run executes runs for several sources concurrently and waits for all of
// them. The first error is returned, but every source still runs to its own
// completion or failure.
func (r *Runner) Run(ctx context.Context, sourceIDs []string, mode Mode) ([]Summary, error) {
	summaries := make([]Summary, len(sourceIDs))

	// A plain group: one source failing must not cancel the others, failure
	// isolation is per source.
	var g errgroup.Group

	for i, id := range sourceIDs {
		i, id := i, id
		o, ok := r.orchestrators[id]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", id)
		}
		g.Go(func() error {
			r.mu.Lock()
			if r.running[id] {
				r.mu.Unlock()
				return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
			}
			r.running[id] = true
			r.mu.Unlock()
			defer func() {
				r.mu.Lock()
				r.running[id] = false
				r.mu.Unlock()
			}()

			sum, err := r.execute(ctx, o, mode, "")
			summaries[i] = sum
			return err
		})
	}

	err := g.Wait()
	return summaries, err
}

func (r *Runner) execute(ctx context.Context, o *Orchestrator, mode Mode, jobID string) (Summary, error) {
	if mode == ModeDetails {
		return o.RunDetails(ctx, jobID)
	}
	return o.Run(ctx, jobID)
}
