package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/merch"
)

// topSerpResults bounds the per-keyword aggregate to the first page fold.
const topSerpResults = 10

// KeywordEngine scores keywords from their latest SERP snapshot,
// normalized cross-sectionally against the other keywords in the run.
type KeywordEngine struct {
	serp     merch.SerpStore
	products merch.ProductStore
	metrics  merch.MetricsStore
	clock    merch.Clock
	weights  merch.Weights
	logger   *zap.Logger
}

// NewKeywordEngine builds a KeywordEngine. The product store supplies
// BSR values for SERP result ASINs already tracked by the crawler.
func NewKeywordEngine(
	serp merch.SerpStore,
	products merch.ProductStore,
	metrics merch.MetricsStore,
	clock merch.Clock,
	weights merch.Weights,
	logger *zap.Logger,
) *KeywordEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if weights == (merch.Weights{}) {
		weights = merch.DefaultWeights()
	}
	return &KeywordEngine{serp: serp, products: products, metrics: metrics, clock: clock, weights: weights, logger: logger}
}

// keywordAggregate holds the raw per-keyword statistics collected in the
// first pass, before cross-sectional normalization.
type keywordAggregate struct {
	keyword, alias string
	avgBSR         *float64
	medianBSR      *float64
	avgReviews     *float64
	medianReviews  *float64
	reviewsP80     float64
	avgRating      float64
	merchShare     float64
	brandEntropy   float64
	priceIQR       *float64
	sampleCount    int
}

// Run scores every tracked keyword once. Single-keyword failures are
// logged and skipped; the returned count is rows upserted.
func (e *KeywordEngine) Run(ctx context.Context) (int, error) {
	pairs, err := e.serp.TrackedKeywords(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tracked keywords: %w", err)
	}

	var aggregates []keywordAggregate
	for _, pair := range pairs {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		agg, err := e.aggregate(ctx, pair.Keyword, pair.Alias)
		if err != nil {
			e.logger.Warn("keyword aggregation failed",
				zap.String("keyword", pair.Keyword), zap.String("alias", pair.Alias), zap.Error(err))
			continue
		}
		aggregates = append(aggregates, agg)
	}

	// Normalization bounds come from this run's keyword set only.
	var normReviews, normBSR, normRating, normDiversity rangeNormalizer
	for _, agg := range aggregates {
		normReviews.observe(agg.reviewsP80)
		if agg.avgBSR != nil {
			normBSR.observe(*agg.avgBSR)
		}
		normRating.observe(agg.avgRating)
		normDiversity.observe(agg.brandEntropy)
	}

	day := truncateToDay(e.clock.Now())
	upserted := 0
	for _, agg := range aggregates {
		row := e.score(ctx, agg, day, &normReviews, &normBSR, &normRating, &normDiversity)
		if err := e.metrics.UpsertDaily(ctx, row); err != nil {
			e.logger.Warn("keyword metrics upsert failed",
				zap.String("keyword", agg.keyword), zap.String("alias", agg.alias), zap.Error(err))
			continue
		}
		upserted++
	}
	return upserted, nil
}

func (e *KeywordEngine) aggregate(ctx context.Context, keyword, alias string) (keywordAggregate, error) {
	snapshot, err := e.serp.LatestSnapshot(ctx, keyword, alias)
	if err != nil {
		return keywordAggregate{}, fmt.Errorf("load snapshot: %w", err)
	}
	if len(snapshot) == 0 {
		return keywordAggregate{}, fmt.Errorf("empty snapshot")
	}
	if len(snapshot) > topSerpResults {
		snapshot = snapshot[:topSerpResults]
	}

	var (
		bsrs, reviews, ratings, prices []float64
		brands                         []string
		merchCount                     int
	)
	for _, row := range snapshot {
		if row.ReviewCount != nil {
			reviews = append(reviews, float64(*row.ReviewCount))
		}
		if row.Rating != nil {
			ratings = append(ratings, *row.Rating)
		}
		if row.PriceCents != nil {
			prices = append(prices, float64(*row.PriceCents))
		}
		brands = append(brands, strings.ToLower(row.Brand))
		if row.IsMerch {
			merchCount++
		}
		// SERP cards do not expose rank; resolve BSR through tracked
		// products where available.
		if product, err := e.products.GetProduct(ctx, row.ASIN); err == nil && product.BSR != nil {
			bsrs = append(bsrs, float64(*product.BSR))
		}
	}

	agg := keywordAggregate{
		keyword:      keyword,
		alias:        alias,
		reviewsP80:   percentile(reviews, 80),
		avgRating:    mean(ratings),
		merchShare:   float64(merchCount) / float64(len(snapshot)),
		brandEntropy: shannonEntropy(brands),
		sampleCount:  len(snapshot),
	}
	if len(reviews) > 0 {
		agg.avgReviews = ptr(mean(reviews))
		agg.medianReviews = ptr(median(reviews))
	}
	if len(bsrs) > 0 {
		agg.avgBSR = ptr(mean(bsrs))
		agg.medianBSR = ptr(median(bsrs))
	}
	if len(prices) > 1 {
		agg.priceIQR = ptr(interquartileRange(prices))
	}
	return agg, nil
}

func (e *KeywordEngine) score(
	ctx context.Context,
	agg keywordAggregate,
	day time.Time,
	normReviews, normBSR, normRating, normDiversity *rangeNormalizer,
) merch.KeywordMetricsDaily {
	bsrTerm := 0.5
	if agg.avgBSR != nil {
		bsrTerm = normBSR.norm(*agg.avgBSR)
	}
	competition := clamp01(
		e.weights.Reviews*normReviews.norm(agg.reviewsP80) +
			e.weights.BSR*(1-bsrTerm) +
			e.weights.Merch*(1-agg.merchShare) +
			e.weights.Rating*normRating.norm(agg.avgRating) +
			e.weights.Diversity*(1-normDiversity.norm(agg.brandEntropy)))

	momentum7 := e.momentumOverWindow(ctx, agg, day, 7)
	momentum30 := e.momentumOverWindow(ctx, agg, day, 30)

	return merch.KeywordMetricsDaily{
		Keyword:       agg.keyword,
		Alias:         agg.alias,
		Day:           day,
		Difficulty:    int(math.Round(clamp(competition*100, 0, 100))),
		Competition:   competition,
		Opportunity:   opportunityScore(competition, momentum7),
		AvgBSR:        agg.avgBSR,
		MedianBSR:     agg.medianBSR,
		AvgReviews:    agg.avgReviews,
		MedianReviews: agg.medianReviews,
		MerchShare:    agg.merchShare,
		BrandEntropy:  agg.brandEntropy,
		PriceIQR:      agg.priceIQR,
		SampleCount:   agg.sampleCount,
		Momentum7d:    momentum7,
		Momentum30d:   momentum30,
		IntentTags:    intentTags(agg.keyword),
	}
}

// momentumOverWindow compares the current avg BSR against the window
// baseline: (baseline-current)/baseline. Nil when no baseline exists,
// the baseline is zero, or the current aggregate has no BSR.
func (e *KeywordEngine) momentumOverWindow(ctx context.Context, agg keywordAggregate, day time.Time, days int) *float64 {
	if agg.avgBSR == nil {
		return nil
	}
	rows, err := e.metrics.DailyRange(ctx, agg.keyword, agg.alias, day.AddDate(0, 0, -days), day)
	if err != nil {
		e.logger.Debug("momentum baseline load failed", zap.String("keyword", agg.keyword), zap.Error(err))
		return nil
	}
	var baselines []float64
	for _, row := range rows {
		if row.AvgBSR != nil {
			baselines = append(baselines, *row.AvgBSR)
		}
	}
	if len(baselines) == 0 {
		return nil
	}
	baseline := mean(baselines)
	if baseline == 0 {
		return nil
	}
	return ptr((baseline - *agg.avgBSR) / baseline)
}

// opportunityScore combines headroom with momentum. A nil momentum
// defaults to the midpoint after mapping [-1,1] onto [0,1].
func opportunityScore(competition float64, momentum7 *float64) int {
	momentumTerm := 0.5
	if momentum7 != nil {
		momentumTerm = clamp01((*momentum7 + 1) / 2)
	}
	return int(math.Round(clamp((1-competition)*momentumTerm*100, 0, 100)))
}

// intentTagRules label keywords with coarse buyer-intent buckets.
var intentTagRules = []struct {
	Tag      string
	Keywords []string
}{
	{"gift", []string{"gift", "present", "for dad", "for mom", "for him", "for her"}},
	{"humor", []string{"funny", "sarcastic", "joke"}},
	{"retro", []string{"vintage", "retro", "distressed"}},
	{"occasion", []string{"birthday", "christmas", "halloween", "father's day", "mother's day"}},
	{"profession", []string{"nurse", "teacher", "engineer", "mechanic"}},
}

func intentTags(keyword string) []string {
	lower := strings.ToLower(keyword)
	var tags []string
	for _, rule := range intentTagRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, rule.Tag)
				break
			}
		}
	}
	return tags
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}
