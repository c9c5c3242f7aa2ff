package progress

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	t := NewTracker()
	t.clock = clock
	return t, clock
}

func TestStartAndGet(t *testing.T) {
	tr, clock := newTestTracker()

	snap := tr.Start("job-1", "zara", 0)
	if snap.Status != StatusRunning {
		t.Errorf("status = %s, want running", snap.Status)
	}
	if !snap.StartTime.Equal(clock.now) {
		t.Errorf("start time = %v, want %v", snap.StartTime, clock.now)
	}

	got, err := tr.Get("job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.JobID != "job-1" || got.Source != "zara" {
		t.Errorf("snapshot = %+v", got)
	}

	if _, err := tr.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("unknown job: got %v, want ErrJobNotFound", err)
	}
}

func TestPercentage(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Start("job-1", "zara", 0)

	if err := tr.SetTotal("job-1", 40); err != nil {
		t.Fatalf("SetTotal: %v", err)
	}
	if err := tr.IncrementProcessed("job-1", 10); err != nil {
		t.Fatalf("IncrementProcessed: %v", err)
	}

	snap, _ := tr.Get("job-1")
	if snap.Percentage != 25 {
		t.Errorf("10 of 40 = %.1f%%, want 25", snap.Percentage)
	}

	// Overshoot clamps at 100 rather than exceeding it.
	tr.IncrementProcessed("job-1", 100)
	snap, _ = tr.Get("job-1")
	if snap.Percentage != 100 {
		t.Errorf("overshoot = %.1f%%, want clamped 100", snap.Percentage)
	}
}

func TestPercentageZeroTotal(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Start("job-1", "zara", 0)
	tr.IncrementProcessed("job-1", 5)

	snap, _ := tr.Get("job-1")
	if snap.Percentage != 0 {
		t.Errorf("unknown total = %.1f%%, want 0", snap.Percentage)
	}
}

func TestSubscribePrimedAndUpdates(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Start("job-1", "zara", 10)

	ch, cancel, err := tr.Subscribe("job-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	// First receive is the current snapshot, before any further mutation.
	first := <-ch
	if first.Status != StatusRunning || first.TotalItems != 10 {
		t.Errorf("primed snapshot = %+v", first)
	}

	tr.IncrementProcessed("job-1", 4)
	next := <-ch
	if next.ProcessedItems != 4 || next.Percentage != 40 {
		t.Errorf("update = %+v", next)
	}
}

func TestSubscribeCancelIsolated(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Start("job-1", "zara", 10)

	ch1, cancel1, _ := tr.Subscribe("job-1")
	ch2, cancel2, _ := tr.Subscribe("job-1")
	defer cancel2()

	<-ch1
	<-ch2
	cancel1()

	// The surviving subscriber keeps receiving.
	tr.IncrementProcessed("job-1", 1)
	select {
	case snap := <-ch2:
		if snap.ProcessedItems != 1 {
			t.Errorf("snapshot = %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("surviving subscriber received nothing")
	}

	if _, open := <-ch1; open {
		t.Error("cancelled channel must be closed")
	}
}

func TestSubscribeAll(t *testing.T) {
	tr, _ := newTestTracker()

	ch, cancel := tr.SubscribeAll()
	defer cancel()

	tr.Start("job-1", "zara", 10)
	tr.Start("job-2", "bershka", 20)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case snap := <-ch:
			seen[snap.JobID] = true
		case <-time.After(time.Second):
			t.Fatal("global subscriber missed a snapshot")
		}
	}
	if !seen["job-1"] || !seen["job-2"] {
		t.Errorf("seen = %v, want both jobs", seen)
	}
}

func TestCompleteAndFail(t *testing.T) {
	tr, _ := newTestTracker()
	tr.graceDelay = time.Hour // keep terminal jobs queryable for the test

	tr.Start("job-1", "zara", 10)
	if err := tr.Complete("job-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	snap, _ := tr.Get("job-1")
	if snap.Status != StatusCompleted || !snap.Status.Terminal() {
		t.Errorf("snapshot = %+v", snap)
	}

	tr.Start("job-2", "zara", 10)
	if err := tr.Fail("job-2", errors.New("upstream down")); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	snap, _ = tr.Get("job-2")
	if snap.Status != StatusFailed || snap.Error != "upstream down" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestTerminalJobEvicted(t *testing.T) {
	tr, _ := newTestTracker()
	tr.graceDelay = 10 * time.Millisecond

	tr.Start("job-1", "zara", 10)
	ch, cancel, _ := tr.Subscribe("job-1")
	defer cancel()
	<-ch

	if err := tr.Complete("job-1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Still queryable inside the grace window.
	if _, err := tr.Get("job-1"); err != nil {
		t.Fatalf("Get inside grace window: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := tr.Get("job-1"); errors.Is(err, ErrJobNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Eviction closes subscriber channels after draining.
	for {
		if _, open := <-ch; !open {
			return
		}
	}
}

func TestListLiveJobs(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Start("job-1", "zara", 10)
	tr.Start("job-2", "oysho", 20)

	list := tr.List()
	if len(list) != 2 {
		t.Fatalf("List = %d jobs, want 2", len(list))
	}
}

func TestMutateUnknownJob(t *testing.T) {
	tr, _ := newTestTracker()
	if err := tr.IncrementProcessed("missing", 1); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
	if err := tr.Complete("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("got %v, want ErrJobNotFound", err)
	}
}
