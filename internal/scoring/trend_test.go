package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchwatch/crawler/internal/merch"
	"github.com/merchwatch/crawler/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func intp(v int) *int { return &v }

func TestNormalizeBSRDelta(t *testing.T) {
	tests := []struct {
		name       string
		prev, curr *int
		want       float64
	}{
		{"halved rank", intp(1000), intp(500), 0.5},
		{"rank got worse", intp(1000), intp(1200), 0},
		{"missing prev", nil, intp(100), 0},
		{"missing curr", intp(100), nil, 0},
		{"zero prev", intp(0), intp(10), 0},
		{"equal", intp(500), intp(500), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, NormalizeBSRDelta(tc.prev, tc.curr), 0.0001)
		})
	}
}

func TestNormalizeReviewGrowth(t *testing.T) {
	assert.InDelta(t, 0.1667, NormalizeReviewGrowth(intp(100), intp(120)), 0.0001)
	assert.Zero(t, NormalizeReviewGrowth(intp(200), intp(180)))
	assert.Zero(t, NormalizeReviewGrowth(nil, intp(50)))
	assert.Zero(t, NormalizeReviewGrowth(intp(10), intp(10)))
}

func TestComputeMomentumBounds(t *testing.T) {
	// All deltas zero yields exactly zero.
	assert.Zero(t, ComputeMomentum(intp(100), intp(100), intp(100), intp(5), intp(5)))

	// Maximal improvement on every term stays clamped to [0,1].
	m := ComputeMomentum(intp(1_000_000), intp(1_000_000), intp(1), intp(0), intp(1_000_000))
	assert.GreaterOrEqual(t, m, 0.0)
	assert.LessOrEqual(t, m, 1.0)

	// Weighted blend for a known case.
	got := ComputeMomentum(intp(1000), intp(800), intp(500), intp(100), intp(120))
	want := 0.57*0.5 + 0.352*0.375 + 0.15*(20.0/120.0)
	assert.InDelta(t, want, got, 0.0001)
}

func TestTrendEngineRun(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	products := memory.NewProductStore()
	metrics := memory.NewMetricsStore()

	ctx := context.Background()
	seed := []struct {
		capturedAt time.Time
		bsr        int
		reviews    int
	}{
		{now.Add(-7*24*time.Hour - time.Hour), 2000, 80},
		{now.Add(-25 * time.Hour), 1500, 100},
		{now.Add(-time.Hour), 900, 130},
	}
	for _, row := range seed {
		_, err := products.UpsertProduct(ctx, merch.Product{
			ASIN:        "B0TRENDING",
			Title:       "Trend Tee",
			BSR:         intp(row.bsr),
			ReviewCount: intp(row.reviews),
			MerchSource: merch.MerchSourceBadge,
			ProductType: merch.ProductTypeTShirt,
			LastSeen:    row.capturedAt,
		})
		require.NoError(t, err)
	}

	engine := NewTrendEngine(products, metrics, fixedClock{now}, nil)
	upserted, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, upserted)

	trend, ok := metrics.Trend("B0TRENDING")
	require.True(t, ok)
	require.NotNil(t, trend.BSRNow)
	assert.Equal(t, 900, *trend.BSRNow)
	require.NotNil(t, trend.BSR24h)
	assert.Equal(t, 1500, *trend.BSR24h)
	require.NotNil(t, trend.BSR7d)
	assert.Equal(t, 2000, *trend.BSR7d)

	want := ComputeMomentum(intp(2000), intp(1500), intp(900), intp(100), intp(130))
	assert.InDelta(t, want, trend.Momentum, 0.0001)
	assert.GreaterOrEqual(t, trend.Momentum, 0.0)
	assert.LessOrEqual(t, trend.Momentum, 1.0)
}
