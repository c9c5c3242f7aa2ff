package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrCapacityExceeded is returned when a tracking insert would push a user
// past the per-user cap.
var ErrCapacityExceeded = errors.New("tracking capacity exceeded")

// Category is one flattened leaf of a source's category tree. Categories are
// refreshed each discovery run and deactivated rather than deleted.
type Category struct {
	Source       string
	ID           int64
	Name         string
	Path         string
	Active       bool
	ProductCount int
	UpdatedAt    time.Time
}

// Identity is a raw source-provided product id together with the categories
// it was seen in. Created during discovery, consumed by detail-only re-runs,
// marked processed after canonicalization.
type Identity struct {
	Source      string
	ProductID   int64
	CategoryIDs []int64
	Processed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanonicalProduct is the persisted unit: one buyable color variant.
// Exactly one row exists per canonical id per source.
type CanonicalProduct struct {
	Source      string
	CanonicalID int64
	Reference   string
	Name        string
	ColorID     string
	ColorName   string
	// Price and OldPrice are integer minor currency units.
	Price      int64
	OldPrice   int64
	Currency   string
	ImageURL   string
	ProductURL string
	CategoryID int64
	// Siblings maps other color ids of the same parent product to their
	// canonical ids. Empty for single-color products.
	Siblings  map[string]int64
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackingRecord binds a user to a canonical product with alert preferences
// and the metadata of the original request.
type TrackingRecord struct {
	ID             string
	UserID         string
	Source         string
	CanonicalID    int64
	RequestedColor string
	OriginalInput  string
	AlertPriceDrop bool
	AlertRestock   bool
	CreatedAt      time.Time
}
