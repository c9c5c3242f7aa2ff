// Package progress maintains the in-memory scrape job registry and publishes
// immutable job snapshots to per-job and global subscribers.
package progress

import (
	"errors"
	"sync"
	"time"
)

// ErrJobNotFound is returned for unknown or already-evicted job ids.
var ErrJobNotFound = errors.New("progress: job not found")

// Status is a scrape job lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is an immutable view of a job, published on every mutation.
type Snapshot struct {
	JobID           string    `json:"jobId"`
	Source          string    `json:"source"`
	Status          Status    `json:"status"`
	TotalItems      int       `json:"totalItems"`
	ProcessedItems  int       `json:"processedItems"`
	SavedItems      int       `json:"savedItems"`
	Percentage      float64   `json:"percentage"`
	CurrentCategory string    `json:"currentCategory,omitempty"`
	Error           string    `json:"error,omitempty"`
	StartTime       time.Time `json:"startTime"`
	LastUpdate      time.Time `json:"lastUpdate"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// subscriberBuffer bounds a subscriber channel; a subscriber that falls this
// far behind loses intermediate snapshots rather than blocking the producer.
const subscriberBuffer = 64

type subscriber struct {
	ch     chan Snapshot
	closed bool
}

// job pairs a snapshot with its own lock and subscriber list so concurrent
// jobs never contend on a shared lock.
type job struct {
	mu    sync.Mutex
	snap  Snapshot
	subs  []*subscriber
	evict *time.Timer
}

// Tracker is the jobId -> job registry. Each job has exactly one producer
// (the owning pipeline run) and zero or more consumers. Terminal jobs remain
// queryable for a grace window and are then evicted.
type Tracker struct {
	mu     sync.RWMutex
	jobs   map[string]*job
	global []*subscriber

	clock      Clock
	graceDelay time.Duration
}

// NewTracker creates a Tracker with the default 30s post-terminal grace
// window.
func NewTracker() *Tracker {
	return &Tracker{
		jobs:       make(map[string]*job),
		clock:      realClock{},
		graceDelay: 30 * time.Second,
	}
}

// Start registers a new running job.
func (t *Tracker) Start(jobID, source string, totalItems int) Snapshot {
	now := t.clock.Now()
	j := &job{snap: Snapshot{
		JobID:      jobID,
		Source:     source,
		Status:     StatusRunning,
		TotalItems: totalItems,
		StartTime:  now,
		LastUpdate: now,
	}}
	j.snap.Percentage = percentage(j.snap)

	t.mu.Lock()
	t.jobs[jobID] = j
	t.mu.Unlock()

	t.publish(j, j.snap)
	return j.snap
}

// Get returns the current snapshot for a job.
func (t *Tracker) Get(jobID string) (Snapshot, error) {
	j, err := t.lookup(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap, nil
}

// List returns snapshots of all live jobs.
func (t *Tracker) List() []Snapshot {
	t.mu.RLock()
	jobs := make([]*job, 0, len(t.jobs))
	for _, j := range t.jobs {
		jobs = append(jobs, j)
	}
	t.mu.RUnlock()

	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		j.mu.Lock()
		out = append(out, j.snap)
		j.mu.Unlock()
	}
	return out
}

// SetTotal updates the job's expected item count.
func (t *Tracker) SetTotal(jobID string, total int) error {
	return t.mutate(jobID, func(s *Snapshot) {
		s.TotalItems = total
	})
}

// IncrementProcessed advances the processed counter by n.
func (t *Tracker) IncrementProcessed(jobID string, n int) error {
	return t.mutate(jobID, func(s *Snapshot) {
		s.ProcessedItems += n
	})
}

// IncrementSaved advances the saved counter by n.
func (t *Tracker) IncrementSaved(jobID string, n int) error {
	return t.mutate(jobID, func(s *Snapshot) {
		s.SavedItems += n
	})
}

// SetCurrentCategory records the category or batch label being worked on.
func (t *Tracker) SetCurrentCategory(jobID, category string) error {
	return t.mutate(jobID, func(s *Snapshot) {
		s.CurrentCategory = category
	})
}

// Complete marks the job completed and schedules eviction.
func (t *Tracker) Complete(jobID string) error {
	err := t.mutate(jobID, func(s *Snapshot) {
		s.Status = StatusCompleted
		s.CurrentCategory = ""
	})
	if err != nil {
		return err
	}
	t.scheduleEviction(jobID)
	return nil
}

// Fail marks the job failed, attaches the error to the final snapshot, and
// schedules eviction.
func (t *Tracker) Fail(jobID string, cause error) error {
	err := t.mutate(jobID, func(s *Snapshot) {
		s.Status = StatusFailed
		if cause != nil {
			s.Error = cause.Error()
		}
	})
	if err != nil {
		return err
	}
	t.scheduleEviction(jobID)
	return nil
}

// Subscribe returns a channel of snapshots for one job, primed with the
// current snapshot, plus a cancel function. Cancelling never affects the job.
func (t *Tracker) Subscribe(jobID string) (<-chan Snapshot, func(), error) {
	j, err := t.lookup(jobID)
	if err != nil {
		return nil, nil, err
	}

	sub := &subscriber{ch: make(chan Snapshot, subscriberBuffer)}

	j.mu.Lock()
	j.subs = append(j.subs, sub)
	sub.ch <- j.snap
	j.mu.Unlock()

	cancel := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		for i, s := range j.subs {
			if s == sub {
				j.subs = append(j.subs[:i], j.subs[i+1:]...)
				break
			}
		}
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	return sub.ch, cancel, nil
}

// SubscribeAll returns a channel receiving every snapshot published for any
// job, plus a cancel function.
func (t *Tracker) SubscribeAll() (<-chan Snapshot, func()) {
	sub := &subscriber{ch: make(chan Snapshot, subscriberBuffer)}

	t.mu.Lock()
	t.global = append(t.global, sub)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.global {
			if s == sub {
				t.global = append(t.global[:i], t.global[i+1:]...)
				break
			}
		}
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

func (t *Tracker) lookup(jobID string) (*job, error) {
	t.mu.RLock()
	j, ok := t.jobs[jobID]
	t.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// mutate applies fn under the job's own lock, recomputes the percentage, and
// publishes the resulting snapshot.
func (t *Tracker) mutate(jobID string, fn func(*Snapshot)) error {
	j, err := t.lookup(jobID)
	if err != nil {
		return err
	}

	j.mu.Lock()
	fn(&j.snap)
	j.snap.LastUpdate = t.clock.Now()
	j.snap.Percentage = percentage(j.snap)
	snap := j.snap
	j.mu.Unlock()

	t.publish(j, snap)
	return nil
}

func (t *Tracker) publish(j *job, snap Snapshot) {
	j.mu.Lock()
	for _, sub := range j.subs {
		sub.send(snap)
	}
	j.mu.Unlock()

	t.mu.RLock()
	for _, sub := range t.global {
		sub.send(snap)
	}
	t.mu.RUnlock()
}

// send delivers without blocking; a full subscriber drops the snapshot.
func (s *subscriber) send(snap Snapshot) {
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
	}
}

func (t *Tracker) scheduleEviction(jobID string) {
	j, err := t.lookup(jobID)
	if err != nil {
		return
	}

	j.mu.Lock()
	if j.evict == nil {
		j.evict = time.AfterFunc(t.graceDelay, func() { t.evict(jobID) })
	}
	j.mu.Unlock()
}

func (t *Tracker) evict(jobID string) {
	t.mu.Lock()
	j, ok := t.jobs[jobID]
	if ok {
		delete(t.jobs, jobID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	j.mu.Lock()
	for _, sub := range j.subs {
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	j.subs = nil
	j.mu.Unlock()
}

// percentage recomputes processed/total clamped to [0,100]; zero totals map
// to zero.
func percentage(s Snapshot) float64 {
	if s.TotalItems <= 0 {
		return 0
	}
	p := float64(s.ProcessedItems) / float64(s.TotalItems) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
