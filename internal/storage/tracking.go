package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// AddTracking inserts a tracking record, enforcing the per-user capacity cap
// inside the same transaction as the insert so a concurrent pair of adds
// cannot slip past the limit.
func (s *Store) AddTracking(rec TrackingRecord, capacity int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning tracking transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM tracking WHERE user_id = ?`, rec.UserID).Scan(&count); err != nil {
		return fmt.Errorf("counting tracking records: %w", err)
	}
	if capacity > 0 && count >= capacity {
		return ErrCapacityExceeded
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO tracking (id, user_id, source, canonical_id, requested_color,
			original_input, alert_price_drop, alert_restock, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, source, canonical_id) DO UPDATE SET
			requested_color = excluded.requested_color,
			original_input = excluded.original_input,
			alert_price_drop = excluded.alert_price_drop,
			alert_restock = excluded.alert_restock`,
		rec.ID, rec.UserID, rec.Source, rec.CanonicalID, rec.RequestedColor,
		rec.OriginalInput, rec.AlertPriceDrop, rec.AlertRestock,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting tracking record: %w", err)
	}

	return tx.Commit()
}

// RemoveTracking deletes one of the user's tracking records.
func (s *Store) RemoveTracking(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM tracking WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTracking returns the user's tracking records, oldest first.
func (s *Store) ListTracking(userID string) ([]TrackingRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, source, canonical_id, requested_color,
			original_input, alert_price_drop, alert_restock, created_at
		FROM tracking WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackingRecord
	for rows.Next() {
		var r TrackingRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Source, &r.CanonicalID, &r.RequestedColor,
			&r.OriginalInput, &r.AlertPriceDrop, &r.AlertRestock, &createdAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetTracking returns one tracking record by id, scoped to the user.
func (s *Store) GetTracking(userID, id string) (TrackingRecord, error) {
	var r TrackingRecord
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, user_id, source, canonical_id, requested_color,
			original_input, alert_price_drop, alert_restock, created_at
		FROM tracking WHERE user_id = ? AND id = ?`, userID, id,
	).Scan(&r.ID, &r.UserID, &r.Source, &r.CanonicalID, &r.RequestedColor,
		&r.OriginalInput, &r.AlertPriceDrop, &r.AlertRestock, &createdAt)
	if err == sql.ErrNoRows {
		return TrackingRecord{}, ErrNotFound
	}
	if err != nil {
		return TrackingRecord{}, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return TrackingRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return r, nil
}

// CountTracking returns the number of tracking records for a user.
func (s *Store) CountTracking(userID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tracking WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
