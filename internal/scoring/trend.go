package scoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/merch"
)

// Momentum blend weights. Rank improvement over a week dominates, the
// 24h delta catches fresh movement, review growth rounds it out.
const (
	momentumWeightBSR7d    = 0.57
	momentumWeightBSR24h   = 0.352
	momentumWeightReview24 = 0.15
)

// NormalizeBSRDelta scores a rank improvement into [0,1]. Lower BSR is
// better, so only prev>curr counts; a worsening or missing comparison
// point contributes 0, never a penalty.
func NormalizeBSRDelta(prev, curr *int) float64 {
	if prev == nil || curr == nil {
		return 0
	}
	if *prev <= 0 || *curr >= *prev {
		return 0
	}
	return clamp01(float64(*prev-*curr) / float64(*prev))
}

// NormalizeReviewGrowth scores review count growth into [0,1].
func NormalizeReviewGrowth(prev, curr *int) float64 {
	if prev == nil || curr == nil {
		return 0
	}
	if *curr <= 0 || *curr <= *prev {
		return 0
	}
	return clamp01(float64(*curr-*prev) / float64(*curr))
}

// ComputeMomentum blends the three sub-deltas into a bounded [0,1] score.
func ComputeMomentum(bsr7d, bsr24h, bsrNow, reviews24h, reviewsNow *int) float64 {
	return clamp01(
		momentumWeightBSR7d*NormalizeBSRDelta(bsr7d, bsrNow) +
			momentumWeightBSR24h*NormalizeBSRDelta(bsr24h, bsrNow) +
			momentumWeightReview24*NormalizeReviewGrowth(reviews24h, reviewsNow))
}

// TrendEngine computes per-product momentum from history rows.
type TrendEngine struct {
	products merch.ProductStore
	metrics  merch.MetricsStore
	clock    merch.Clock
	logger   *zap.Logger
}

// NewTrendEngine builds a TrendEngine.
func NewTrendEngine(products merch.ProductStore, metrics merch.MetricsStore, clock merch.Clock, logger *zap.Logger) *TrendEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrendEngine{products: products, metrics: metrics, clock: clock, logger: logger}
}

// Run recomputes momentum for every product active in the last 7 days.
// A single product's failure is logged and skipped, never fatal.
func (e *TrendEngine) Run(ctx context.Context) (int, error) {
	now := e.clock.Now()
	since := now.Add(-7 * 24 * time.Hour)

	asins, err := e.products.ActiveASINs(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("list active asins: %w", err)
	}

	upserted := 0
	for _, asin := range asins {
		if ctx.Err() != nil {
			return upserted, ctx.Err()
		}
		// Load one extra day so the 7d-ago comparison point is present.
		trend, err := e.computeTrend(ctx, asin, now, now.Add(-8*24*time.Hour))
		if err != nil {
			e.logger.Warn("trend computation failed", zap.String("asin", asin), zap.Error(err))
			continue
		}
		if err := e.metrics.UpsertTrend(ctx, trend); err != nil {
			e.logger.Warn("trend upsert failed", zap.String("asin", asin), zap.Error(err))
			continue
		}
		upserted++
	}
	return upserted, nil
}

func (e *TrendEngine) computeTrend(ctx context.Context, asin string, now, since time.Time) (merch.ProductTrend, error) {
	history, err := e.products.History(ctx, asin, since)
	if err != nil {
		return merch.ProductTrend{}, fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		return merch.ProductTrend{}, fmt.Errorf("no history rows")
	}

	latest := history[len(history)-1]
	at24h := latestAtOrBefore(history, now.Add(-24*time.Hour))
	at7d := latestAtOrBefore(history, now.Add(-7*24*time.Hour))

	trend := merch.ProductTrend{
		ASIN:       asin,
		ComputedAt: now,
		BSRNow:     latest.BSR,
		Reviews:    latest.ReviewCount,
		RatingNow:  latest.Rating,
	}
	if at24h != nil {
		trend.BSR24h = at24h.BSR
		trend.Reviews24h = at24h.ReviewCount
	}
	if at7d != nil {
		trend.BSR7d = at7d.BSR
		trend.Reviews7d = at7d.ReviewCount
	}
	trend.Momentum = ComputeMomentum(trend.BSR7d, trend.BSR24h, trend.BSRNow, trend.Reviews24h, trend.Reviews)
	return trend, nil
}

// latestAtOrBefore returns the newest history row captured at or before
// cutoff, or nil. History is ordered oldest first.
func latestAtOrBefore(history []merch.HistorySnapshot, cutoff time.Time) *merch.HistorySnapshot {
	var found *merch.HistorySnapshot
	for i := range history {
		if history[i].CapturedAt.After(cutoff) {
			break
		}
		found = &history[i]
	}
	return found
}
