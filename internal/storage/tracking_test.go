package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func trackingRecord(id, userID string, canonicalID int64) TrackingRecord {
	return TrackingRecord{
		ID:             id,
		UserID:         userID,
		Source:         "zara",
		CanonicalID:    canonicalID,
		RequestedColor: "800",
		OriginalInput:  "https://www.zara.com/es/coat-p100.html",
		AlertPriceDrop: true,
	}
}

func TestAddTrackingCapacity(t *testing.T) {
	s := openTestStore(t)

	const capacity = 10
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < capacity; i++ {
		rec := trackingRecord(fmt.Sprintf("rec-%02d", i), "u1", int64(i))
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.AddTracking(rec, capacity); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	err := s.AddTracking(trackingRecord("rec-11", "u1", 11), capacity)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("11th add: got %v, want ErrCapacityExceeded", err)
	}

	// The rejected add must leave the list unchanged.
	list, err := s.ListTracking("u1")
	if err != nil {
		t.Fatalf("ListTracking: %v", err)
	}
	if len(list) != capacity {
		t.Errorf("list length = %d, want %d", len(list), capacity)
	}
	for i, r := range list {
		if want := fmt.Sprintf("rec-%02d", i); r.ID != want {
			t.Errorf("list[%d].ID = %q, want %q", i, r.ID, want)
		}
	}
}

func TestAddTrackingCapacityPerUser(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddTracking(trackingRecord("a", "u1", 1), 1); err != nil {
		t.Fatalf("u1 add: %v", err)
	}
	// A different user has their own budget.
	if err := s.AddTracking(trackingRecord("b", "u2", 1), 1); err != nil {
		t.Errorf("u2 add: %v", err)
	}
}

func TestAddTrackingUpsertsDuplicateProduct(t *testing.T) {
	s := openTestStore(t)

	first := trackingRecord("a", "u1", 42)
	if err := s.AddTracking(first, 10); err != nil {
		t.Fatalf("first add: %v", err)
	}

	// Tracking the same product again updates preferences in place.
	second := trackingRecord("b", "u1", 42)
	second.AlertPriceDrop = false
	second.AlertRestock = true
	if err := s.AddTracking(second, 10); err != nil {
		t.Fatalf("second add: %v", err)
	}

	n, _ := s.CountTracking("u1")
	if n != 1 {
		t.Fatalf("duplicate product tracked twice: count = %d", n)
	}

	got, err := s.GetTracking("u1", "a")
	if err != nil {
		t.Fatalf("GetTracking: %v", err)
	}
	if got.AlertPriceDrop || !got.AlertRestock {
		t.Errorf("preferences not updated: %+v", got)
	}
}

func TestRemoveTracking(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddTracking(trackingRecord("a", "u1", 1), 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.RemoveTracking("u1", "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveTracking("u1", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second remove: got %v, want ErrNotFound", err)
	}

	// A user cannot remove someone else's record.
	if err := s.AddTracking(trackingRecord("b", "u2", 2), 10); err != nil {
		t.Fatalf("u2 add: %v", err)
	}
	if err := s.RemoveTracking("u1", "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user remove: got %v, want ErrNotFound", err)
	}
}

func TestGetTrackingNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetTracking("u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
