package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/merchwatch/crawler/internal/merch"
)

// MetricsStore persists derived keyword metrics and product trends.
type MetricsStore struct {
	pool Pool
}

// NewMetricsStore wraps a pool.
func NewMetricsStore(pool Pool) *MetricsStore {
	return &MetricsStore{pool: pool}
}

const upsertDailySQL = `
INSERT INTO keyword_metrics_daily (
	keyword, alias, day, difficulty, competition, opportunity, avg_bsr,
	median_bsr, avg_reviews, median_reviews, merch_share, brand_entropy,
	price_iqr, sample_count, momentum_7d, momentum_30d, intent_tags
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (keyword, alias, day) DO UPDATE SET
	difficulty = EXCLUDED.difficulty,
	competition = EXCLUDED.competition,
	opportunity = EXCLUDED.opportunity,
	avg_bsr = EXCLUDED.avg_bsr,
	median_bsr = EXCLUDED.median_bsr,
	avg_reviews = EXCLUDED.avg_reviews,
	median_reviews = EXCLUDED.median_reviews,
	merch_share = EXCLUDED.merch_share,
	brand_entropy = EXCLUDED.brand_entropy,
	price_iqr = EXCLUDED.price_iqr,
	sample_count = EXCLUDED.sample_count,
	momentum_7d = EXCLUDED.momentum_7d,
	momentum_30d = EXCLUDED.momentum_30d,
	intent_tags = EXCLUDED.intent_tags`

// UpsertDaily overwrites the row for (keyword, alias, day).
func (s *MetricsStore) UpsertDaily(ctx context.Context, row merch.KeywordMetricsDaily) error {
	if _, err := s.pool.Exec(ctx, upsertDailySQL,
		row.Keyword, row.Alias, row.Day, row.Difficulty, row.Competition,
		row.Opportunity, row.AvgBSR, row.MedianBSR, row.AvgReviews,
		row.MedianReviews, row.MerchShare, row.BrandEntropy, row.PriceIQR,
		row.SampleCount, row.Momentum7d, row.Momentum30d, row.IntentTags,
	); err != nil {
		return fmt.Errorf("upsert keyword metrics: %w", err)
	}
	return nil
}

const selectDailyRangeSQL = `
SELECT keyword, alias, day, difficulty, competition, opportunity, avg_bsr,
       median_bsr, avg_reviews, median_reviews, merch_share, brand_entropy,
       price_iqr, sample_count, momentum_7d, momentum_30d, intent_tags
FROM keyword_metrics_daily
WHERE keyword = $1 AND alias = $2 AND day BETWEEN $3 AND $4
ORDER BY day ASC`

// DailyRange returns rows for the pair within [from, to], oldest first.
func (s *MetricsStore) DailyRange(ctx context.Context, keyword, alias string, from, to time.Time) ([]merch.KeywordMetricsDaily, error) {
	rows, err := s.pool.Query(ctx, selectDailyRangeSQL, keyword, alias, from, to)
	if err != nil {
		return nil, fmt.Errorf("select keyword metrics: %w", err)
	}
	defer rows.Close()

	var out []merch.KeywordMetricsDaily
	for rows.Next() {
		var row merch.KeywordMetricsDaily
		if err := rows.Scan(
			&row.Keyword, &row.Alias, &row.Day, &row.Difficulty, &row.Competition,
			&row.Opportunity, &row.AvgBSR, &row.MedianBSR, &row.AvgReviews,
			&row.MedianReviews, &row.MerchShare, &row.BrandEntropy, &row.PriceIQR,
			&row.SampleCount, &row.Momentum7d, &row.Momentum30d, &row.IntentTags,
		); err != nil {
			return nil, fmt.Errorf("scan keyword metrics: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword metrics: %w", err)
	}
	return out, nil
}

const upsertTrendSQL = `
INSERT INTO product_trends (
	asin, computed_at, bsr_now, bsr_24h, bsr_7d, reviews_now, reviews_24h,
	reviews_7d, rating_now, momentum
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (asin) DO UPDATE SET
	computed_at = EXCLUDED.computed_at,
	bsr_now = EXCLUDED.bsr_now,
	bsr_24h = EXCLUDED.bsr_24h,
	bsr_7d = EXCLUDED.bsr_7d,
	reviews_now = EXCLUDED.reviews_now,
	reviews_24h = EXCLUDED.reviews_24h,
	reviews_7d = EXCLUDED.reviews_7d,
	rating_now = EXCLUDED.rating_now,
	momentum = EXCLUDED.momentum`

// UpsertTrend overwrites the momentum row for the ASIN.
func (s *MetricsStore) UpsertTrend(ctx context.Context, trend merch.ProductTrend) error {
	if _, err := s.pool.Exec(ctx, upsertTrendSQL,
		trend.ASIN, trend.ComputedAt, trend.BSRNow, trend.BSR24h, trend.BSR7d,
		trend.Reviews, trend.Reviews24h, trend.Reviews7d, trend.RatingNow,
		trend.Momentum,
	); err != nil {
		return fmt.Errorf("upsert product trend: %w", err)
	}
	return nil
}
