package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/merchwatch/crawler/internal/merch"
)

// ProductStore persists product snapshots and their history.
type ProductStore struct {
	pool Pool
}

// NewProductStore wraps a pool.
func NewProductStore(pool Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

const selectProductSQL = `
SELECT asin, title, brand, price_cents, rating, review_count, bsr, bsr_category,
       url, image_url, bullet1, bullet2, merch_source, product_type, first_seen, last_seen
FROM products
WHERE asin = $1`

// GetProduct returns the stored snapshot or merch.ErrNotFound.
func (s *ProductStore) GetProduct(ctx context.Context, asin string) (merch.Product, error) {
	var p merch.Product
	err := s.pool.QueryRow(ctx, selectProductSQL, asin).Scan(
		&p.ASIN, &p.Title, &p.Brand, &p.PriceCents, &p.Rating, &p.ReviewCount,
		&p.BSR, &p.BSRCategory, &p.URL, &p.ImageURL, &p.Bullet1, &p.Bullet2,
		&p.MerchSource, &p.ProductType, &p.FirstSeen, &p.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return merch.Product{}, merch.ErrNotFound
	}
	if err != nil {
		return merch.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

const upsertProductSQL = `
INSERT INTO products (
	asin, title, brand, price_cents, rating, review_count, bsr, bsr_category,
	url, image_url, bullet1, bullet2, merch_source, product_type, first_seen, last_seen
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (asin) DO UPDATE SET
	title = EXCLUDED.title,
	brand = EXCLUDED.brand,
	price_cents = EXCLUDED.price_cents,
	rating = EXCLUDED.rating,
	review_count = EXCLUDED.review_count,
	bsr = EXCLUDED.bsr,
	bsr_category = EXCLUDED.bsr_category,
	url = EXCLUDED.url,
	image_url = EXCLUDED.image_url,
	bullet1 = EXCLUDED.bullet1,
	bullet2 = EXCLUDED.bullet2,
	merch_source = EXCLUDED.merch_source,
	product_type = EXCLUDED.product_type,
	last_seen = EXCLUDED.last_seen`

const insertHistorySQL = `
INSERT INTO product_history (
	asin, captured_at, price_cents, rating, review_count, bsr, bsr_category,
	merch_source, product_type
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

// UpsertProduct resolves carry-forward fields against the stored row,
// then writes the snapshot and one history row in a transaction.
func (s *ProductStore) UpsertProduct(ctx context.Context, product merch.Product) (bool, error) {
	existing, err := s.GetProduct(ctx, product.ASIN)
	inserted := false
	resolved := product
	switch {
	case err == nil:
		resolved = merch.ResolveSnapshotFields(existing, product)
	case errors.Is(err, merch.ErrNotFound):
		inserted = true
		resolved.FirstSeen = product.LastSeen
	default:
		return false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, upsertProductSQL,
		resolved.ASIN, resolved.Title, resolved.Brand, resolved.PriceCents,
		resolved.Rating, resolved.ReviewCount, resolved.BSR, resolved.BSRCategory,
		resolved.URL, resolved.ImageURL, resolved.Bullet1, resolved.Bullet2,
		resolved.MerchSource, resolved.ProductType, resolved.FirstSeen, resolved.LastSeen,
	); err != nil {
		return false, fmt.Errorf("upsert product: %w", err)
	}

	snap := resolved.Snapshot()
	if _, err := tx.Exec(ctx, insertHistorySQL,
		snap.ASIN, snap.CapturedAt, snap.PriceCents, snap.Rating, snap.ReviewCount,
		snap.BSR, snap.BSRCategory, snap.MerchSource, snap.ProductType,
	); err != nil {
		return false, fmt.Errorf("insert history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

const selectHistorySQL = `
SELECT asin, captured_at, price_cents, rating, review_count, bsr, bsr_category,
       merch_source, product_type
FROM product_history
WHERE asin = $1 AND captured_at >= $2
ORDER BY captured_at ASC`

// History returns rows captured at or after since, oldest first.
func (s *ProductStore) History(ctx context.Context, asin string, since time.Time) ([]merch.HistorySnapshot, error) {
	rows, err := s.pool.Query(ctx, selectHistorySQL, asin, since)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var out []merch.HistorySnapshot
	for rows.Next() {
		var h merch.HistorySnapshot
		if err := rows.Scan(
			&h.ASIN, &h.CapturedAt, &h.PriceCents, &h.Rating, &h.ReviewCount,
			&h.BSR, &h.BSRCategory, &h.MerchSource, &h.ProductType,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

const selectActiveASINsSQL = `
SELECT DISTINCT asin
FROM product_history
WHERE captured_at >= $1
ORDER BY asin`

// ActiveASINs lists ASINs with at least one history row in the window.
func (s *ProductStore) ActiveASINs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, selectActiveASINsSQL, since)
	if err != nil {
		return nil, fmt.Errorf("select active asins: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var asin string
		if err := rows.Scan(&asin); err != nil {
			return nil, fmt.Errorf("scan asin: %w", err)
		}
		out = append(out, asin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asins: %w", err)
	}
	return out, nil
}
