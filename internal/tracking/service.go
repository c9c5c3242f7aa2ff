// Package tracking manages per-user tracking lists with a short-TTL read
// cache. Mutations synchronously invalidate and eagerly repopulate the acting
// user's cache entry before returning, so a user always sees their own
// change; other readers may see data up to one TTL stale.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/resolver"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/storage"
)

// defaultTTL bounds staleness for readers other than the mutating user.
const defaultTTL = 30 * time.Second

// Store is the persistence surface the service needs.
type Store interface {
	AddTracking(rec storage.TrackingRecord, capacity int) error
	RemoveTracking(userID, id string) error
	ListTracking(userID string) ([]storage.TrackingRecord, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Prefs are the alert preferences attached to a tracking record.
type Prefs struct {
	PriceDrop bool
	Restock   bool
}

// entry is one user's cached list. Each entry carries its own lock so users
// never contend with each other.
type entry struct {
	mu      sync.Mutex
	records []storage.TrackingRecord
	expires time.Time
	valid   bool
}

// Service is the tracking-list service over the store and resolver.
type Service struct {
	store    Store
	resolver *resolver.Resolver
	capacity int
	ttl      time.Duration
	clock    Clock

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a Service. capacity is the hard per-user cap; ttl <= 0 selects
// the default.
func New(store Store, res *resolver.Resolver, capacity int, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{
		store:    store,
		resolver: res,
		capacity: capacity,
		ttl:      ttl,
		clock:    realClock{},
		entries:  make(map[string]*entry),
	}
}

// List returns the user's tracking records, served from the per-user cache
// when fresh.
func (s *Service) List(userID string) ([]storage.TrackingRecord, error) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.valid && s.clock.Now().Before(e.expires) {
		return append([]storage.TrackingRecord(nil), e.records...), nil
	}

	records, err := s.store.ListTracking(userID)
	if err != nil {
		return nil, fmt.Errorf("listing tracking records: %w", err)
	}
	e.records = records
	e.expires = s.clock.Now().Add(s.ttl)
	e.valid = true
	return append([]storage.TrackingRecord(nil), records...), nil
}

// Add resolves input to a canonical record and tracks it for the user.
// Resolver and capacity failures surface verbatim.
func (s *Service) Add(ctx context.Context, userID, input string, prefs Prefs) (storage.TrackingRecord, storage.CanonicalProduct, error) {
	product, err := s.resolver.Resolve(ctx, input)
	if err != nil {
		return storage.TrackingRecord{}, storage.CanonicalProduct{}, err
	}

	rec := storage.TrackingRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Source:         product.Source,
		CanonicalID:    product.CanonicalID,
		RequestedColor: product.ColorID,
		OriginalInput:  input,
		AlertPriceDrop: prefs.PriceDrop,
		AlertRestock:   prefs.Restock,
		CreatedAt:      s.clock.Now().UTC(),
	}

	if err := s.store.AddTracking(rec, s.capacity); err != nil {
		return storage.TrackingRecord{}, storage.CanonicalProduct{}, err
	}

	if err := s.repopulate(userID); err != nil {
		return storage.TrackingRecord{}, storage.CanonicalProduct{}, err
	}
	return rec, product, nil
}

// Remove deletes one of the user's tracking records.
func (s *Service) Remove(userID, id string) error {
	if err := s.store.RemoveTracking(userID, id); err != nil {
		return err
	}
	return s.repopulate(userID)
}

// repopulate refreshes the user's cache entry from the store before the
// mutating call returns, guaranteeing read-after-write for that user.
func (s *Service) repopulate(userID string) error {
	records, err := s.store.ListTracking(userID)
	if err != nil {
		// The write landed; a failed repopulation must not hide it. Drop
		// the entry so the next read goes to the store.
		s.invalidate(userID)
		return nil
	}

	e := s.entry(userID)
	e.mu.Lock()
	e.records = records
	e.expires = s.clock.Now().Add(s.ttl)
	e.valid = true
	e.mu.Unlock()
	return nil
}

func (s *Service) invalidate(userID string) {
	e := s.entry(userID)
	e.mu.Lock()
	e.valid = false
	e.mu.Unlock()
}

// entry returns the user's cache entry, creating it on first use. The
// service-level lock guards only the map; list access is per-entry.
func (s *Service) entry(userID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{}
		s.entries[userID] = e
	}
	return e
}
