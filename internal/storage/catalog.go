package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
)

// --- Categories ---

// UpsertCategories refreshes the category set for one source inside a single
// transaction. Categories that disappeared upstream are deactivated, never
// deleted.
func (s *Store) UpsertCategories(source string, cats []Category) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning category transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	if _, err := tx.Exec(`UPDATE categories SET active = 0 WHERE source = ?`, source); err != nil {
		return fmt.Errorf("deactivating categories: %w", err)
	}

	for _, c := range cats {
		_, err := tx.Exec(`
			INSERT INTO categories (source, id, name, path, active, product_count, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(source, id) DO UPDATE SET
				name = excluded.name,
				path = excluded.path,
				active = 1,
				updated_at = excluded.updated_at`,
			source, c.ID, c.Name, c.Path, c.ProductCount, now,
		)
		if err != nil {
			return fmt.Errorf("upserting category %d: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// SetCategoryProductCount records the last seen product count for a category.
func (s *Store) SetCategoryProductCount(source string, categoryID int64, count int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE categories SET product_count = ?, updated_at = ? WHERE source = ? AND id = ?`,
		count, now, source, categoryID)
	return err
}

// ListCategories returns the categories for a source, active first.
func (s *Store) ListCategories(source string) ([]Category, error) {
	rows, err := s.db.Query(`
		SELECT source, id, name, path, active, product_count, updated_at
		FROM categories WHERE source = ? ORDER BY active DESC, id ASC`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		var updatedAt string
		if err := rows.Scan(&c.Source, &c.ID, &c.Name, &c.Path, &c.Active, &c.ProductCount, &updatedAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Identities ---

// CheckpointIdentities persists a batch of (identity -> owning categories)
// mappings in one transaction, merging category sets on conflict so a resumed
// run never loses ownership information.
func (s *Store) CheckpointIdentities(source string, owners map[int64][]int64) error {
	if len(owners) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning identity transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	for productID, categoryIDs := range owners {
		var existing string
		err := tx.QueryRow(`SELECT category_ids FROM identities WHERE source = ? AND product_id = ?`,
			source, productID).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			data, merr := json.Marshal(categoryIDs)
			if merr != nil {
				return fmt.Errorf("encoding category ids: %w", merr)
			}
			if _, err := tx.Exec(`
				INSERT INTO identities (source, product_id, category_ids, processed, created_at, updated_at)
				VALUES (?, ?, ?, 0, ?, ?)`,
				source, productID, string(data), now, now); err != nil {
				return fmt.Errorf("inserting identity %d: %w", productID, err)
			}
		case err != nil:
			return fmt.Errorf("reading identity %d: %w", productID, err)
		default:
			merged, merr := mergeCategoryIDs(existing, categoryIDs)
			if merr != nil {
				return fmt.Errorf("merging categories for identity %d: %w", productID, merr)
			}
			if _, err := tx.Exec(`UPDATE identities SET category_ids = ?, updated_at = ? WHERE source = ? AND product_id = ?`,
				merged, now, source, productID); err != nil {
				return fmt.Errorf("updating identity %d: %w", productID, err)
			}
		}
	}

	return tx.Commit()
}

func mergeCategoryIDs(existing string, add []int64) (string, error) {
	var ids []int64
	if err := json.Unmarshal([]byte(existing), &ids); err != nil {
		return "", err
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range add {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	data, err := json.Marshal(ids)
	return string(data), err
}

// LoadIdentities returns all known identities for a source, in insertion
// order. Used by detail-only re-runs to resume from persisted state.
func (s *Store) LoadIdentities(source string) ([]Identity, error) {
	rows, err := s.db.Query(`
		SELECT source, product_id, category_ids, processed, created_at, updated_at
		FROM identities WHERE source = ? ORDER BY created_at ASC, product_id ASC`, source)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var i Identity
		var categoryIDs, createdAt, updatedAt string
		if err := rows.Scan(&i.Source, &i.ProductID, &categoryIDs, &i.Processed, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(categoryIDs), &i.CategoryIDs); err != nil {
			return nil, fmt.Errorf("decoding category ids for %d: %w", i.ProductID, err)
		}
		if i.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if i.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// MarkIdentitiesProcessed flags identities after their variants were
// canonicalized and persisted.
func (s *Store) MarkIdentitiesProcessed(source string, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning processed transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range productIDs {
		if _, err := tx.Exec(`UPDATE identities SET processed = 1, updated_at = ? WHERE source = ? AND product_id = ?`,
			now, source, id); err != nil {
			return fmt.Errorf("marking identity %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// --- Canonical products ---

// UpsertProducts writes one batch of canonical records inside a single
// transaction, all-or-nothing. The conflict target follows the source's
// configured uniqueness key: by-reference sources match an existing row on
// the normalized reference, by-identity sources on the canonical id. Either
// way at most one row per canonical id per source survives.
func (s *Store) UpsertProducts(key catalog.UniquenessKey, records []CanonicalProduct) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning product transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	for _, p := range records {
		siblings, err := json.Marshal(p.Siblings)
		if err != nil {
			return fmt.Errorf("encoding siblings for %d: %w", p.CanonicalID, err)
		}

		if key == catalog.KeyByReference {
			// Reference is the stable key for this source: an existing row
			// with the same reference is the same product, even if the
			// catalog reissued the numeric id.
			res, err := tx.Exec(`
				UPDATE products SET
					canonical_id = ?, name = ?, color_id = ?, color_name = ?,
					price = ?, old_price = ?, currency = ?, image_url = ?,
					product_url = ?, category_id = ?, siblings = ?, available = ?,
					updated_at = ?
				WHERE source = ? AND reference = ?`,
				p.CanonicalID, p.Name, p.ColorID, p.ColorName,
				p.Price, p.OldPrice, p.Currency, p.ImageURL,
				p.ProductURL, p.CategoryID, string(siblings), p.Available,
				now, p.Source, p.Reference,
			)
			if err != nil {
				return fmt.Errorf("updating product ref %s: %w", p.Reference, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n > 0 {
				continue
			}
		}

		_, err = tx.Exec(`
			INSERT INTO products (source, canonical_id, reference, name, color_id, color_name,
				price, old_price, currency, image_url, product_url, category_id,
				siblings, available, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source, canonical_id) DO UPDATE SET
				reference = excluded.reference,
				name = excluded.name,
				color_id = excluded.color_id,
				color_name = excluded.color_name,
				price = excluded.price,
				old_price = excluded.old_price,
				currency = excluded.currency,
				image_url = excluded.image_url,
				product_url = excluded.product_url,
				category_id = excluded.category_id,
				siblings = excluded.siblings,
				available = excluded.available,
				updated_at = excluded.updated_at`,
			p.Source, p.CanonicalID, p.Reference, p.Name, p.ColorID, p.ColorName,
			p.Price, p.OldPrice, p.Currency, p.ImageURL, p.ProductURL, p.CategoryID,
			string(siblings), p.Available, now, now,
		)
		if err != nil {
			return fmt.Errorf("upserting product %d: %w", p.CanonicalID, err)
		}
	}

	return tx.Commit()
}

const productColumns = `source, canonical_id, reference, name, color_id, color_name,
	price, old_price, currency, image_url, product_url, category_id,
	siblings, available, created_at, updated_at`

// ProductByCanonicalID looks up one canonical record.
func (s *Store) ProductByCanonicalID(source string, canonicalID int64) (CanonicalProduct, error) {
	row := s.db.QueryRow(`SELECT `+productColumns+` FROM products WHERE source = ? AND canonical_id = ?`,
		source, canonicalID)
	return scanProduct(row)
}

// ProductByReference looks up one canonical record by normalized reference.
// For by-identity sources several rows may share a reference; the most
// recently updated wins.
func (s *Store) ProductByReference(source, reference string) (CanonicalProduct, error) {
	row := s.db.QueryRow(`SELECT `+productColumns+` FROM products
		WHERE source = ? AND reference = ? ORDER BY updated_at DESC LIMIT 1`,
		source, reference)
	return scanProduct(row)
}

// CountProducts returns the number of canonical records for a source.
func (s *Store) CountProducts(source string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM products WHERE source = ?`, source).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (CanonicalProduct, error) {
	var p CanonicalProduct
	var siblings, createdAt, updatedAt string
	err := row.Scan(&p.Source, &p.CanonicalID, &p.Reference, &p.Name, &p.ColorID, &p.ColorName,
		&p.Price, &p.OldPrice, &p.Currency, &p.ImageURL, &p.ProductURL, &p.CategoryID,
		&siblings, &p.Available, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return CanonicalProduct{}, ErrNotFound
	}
	if err != nil {
		return CanonicalProduct{}, err
	}
	if err := json.Unmarshal([]byte(siblings), &p.Siblings); err != nil {
		return CanonicalProduct{}, fmt.Errorf("decoding siblings: %w", err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return CanonicalProduct{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return CanonicalProduct{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return p, nil
}
