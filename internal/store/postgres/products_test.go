package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchwatch/crawler/internal/merch"
)

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func TestUpsertProductInsertsNewRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewProductStore(mock)
	now := time.Unix(1700000000, 0).UTC()

	product := merch.Product{
		ASIN:        "B0EXAMPLE9",
		Title:       "Cat Tee",
		Brand:       "CatCo",
		PriceCents:  intp(1999),
		Rating:      floatp(4.5),
		ReviewCount: intp(12),
		BSR:         intp(1234),
		BSRCategory: "Clothing, Shoes & Jewelry",
		URL:         "https://www.amazon.com/dp/B0EXAMPLE9",
		MerchSource: merch.MerchSourceBadge,
		ProductType: merch.ProductTypeTShirt,
		LastSeen:    now,
	}

	mock.ExpectQuery("SELECT (.+) FROM products").
		WithArgs("B0EXAMPLE9").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO products").
		WithArgs(
			product.ASIN, product.Title, product.Brand, product.PriceCents,
			product.Rating, product.ReviewCount, product.BSR, product.BSRCategory,
			product.URL, product.ImageURL, product.Bullet1, product.Bullet2,
			product.MerchSource, product.ProductType, now, now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO product_history").
		WithArgs(
			product.ASIN, now, product.PriceCents, product.Rating,
			product.ReviewCount, product.BSR, product.BSRCategory,
			product.MerchSource, product.ProductType,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	inserted, err := store.UpsertProduct(context.Background(), product)
	require.NoError(t, err)
	assert.True(t, inserted, "first write reports an insert")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProductCarriesForwardStoredFields(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewProductStore(mock)
	firstSeen := time.Unix(1690000000, 0).UTC()
	now := time.Unix(1700000000, 0).UTC()

	// The fresh crawl lost the BSR block and the review count.
	crawled := merch.Product{
		ASIN:        "B0EXAMPLE9",
		Title:       "Cat Tee",
		Brand:       "CatCo",
		PriceCents:  intp(2199),
		MerchSource: merch.MerchSourceBadge,
		ProductType: merch.ProductTypeTShirt,
		URL:         "https://www.amazon.com/dp/B0EXAMPLE9",
		LastSeen:    now,
	}

	mock.ExpectQuery("SELECT (.+) FROM products").
		WithArgs("B0EXAMPLE9").
		WillReturnRows(pgxmock.NewRows([]string{
			"asin", "title", "brand", "price_cents", "rating", "review_count",
			"bsr", "bsr_category", "url", "image_url", "bullet1", "bullet2",
			"merch_source", "product_type", "first_seen", "last_seen",
		}).AddRow(
			"B0EXAMPLE9", "Cat Tee", "CatCo", intp(1999), floatp(4.5), intp(12),
			intp(1234), "Clothing, Shoes & Jewelry", "https://www.amazon.com/dp/B0EXAMPLE9",
			"", "", "", merch.MerchSourceBadge, merch.ProductTypeTShirt, firstSeen, firstSeen,
		))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO products").
		WithArgs(
			"B0EXAMPLE9", "Cat Tee", "CatCo", intp(2199), floatp(4.5), intp(12),
			intp(1234), "Clothing, Shoes & Jewelry", crawled.URL, "", "", "",
			merch.MerchSourceBadge, merch.ProductTypeTShirt, firstSeen, now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO product_history").
		WithArgs(
			"B0EXAMPLE9", now, intp(2199), floatp(4.5), intp(12), intp(1234),
			"Clothing, Shoes & Jewelry", merch.MerchSourceBadge, merch.ProductTypeTShirt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	inserted, err := store.UpsertProduct(context.Background(), crawled)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewProductStore(mock)
	mock.ExpectQuery("SELECT (.+) FROM products").
		WithArgs("B0MISSING0").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetProduct(context.Background(), "B0MISSING0")
	assert.ErrorIs(t, err, merch.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryReturnsRowsOldestFirst(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewProductStore(mock)
	since := time.Unix(1690000000, 0).UTC()
	older := since.Add(time.Hour)
	newer := since.Add(48 * time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM product_history").
		WithArgs("B0EXAMPLE9", since).
		WillReturnRows(pgxmock.NewRows([]string{
			"asin", "captured_at", "price_cents", "rating", "review_count",
			"bsr", "bsr_category", "merch_source", "product_type",
		}).AddRow(
			"B0EXAMPLE9", older, intp(1999), floatp(4.5), intp(10),
			intp(2000), "Clothing", merch.MerchSourceBadge, merch.ProductTypeTShirt,
		).AddRow(
			"B0EXAMPLE9", newer, intp(1999), floatp(4.6), intp(14),
			intp(1500), "Clothing", merch.MerchSourceBadge, merch.ProductTypeTShirt,
		))

	rows, err := store.History(context.Background(), "B0EXAMPLE9", since)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, older, rows[0].CapturedAt)
	assert.Equal(t, 1500, *rows[1].BSR)
	require.NoError(t, mock.ExpectationsWereMet())
}
