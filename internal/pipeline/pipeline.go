// Package pipeline wires discovery, recrawl, SERP processing and metric
// derivation into the run entry points the commands invoke.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/crawlstate"
	"github.com/merchwatch/crawler/internal/discover"
	"github.com/merchwatch/crawler/internal/extract"
	"github.com/merchwatch/crawler/internal/merch"
	"github.com/merchwatch/crawler/internal/scoring"
	"github.com/merchwatch/crawler/internal/serp"
	"github.com/merchwatch/crawler/internal/telemetry"
)

type hostLimiter interface {
	Wait(ctx context.Context, url string) error
}

type delaySource interface {
	Next(minMillis, maxMillis int) time.Duration
}

// ProductEvent is the Pub/Sub payload for a newly discovered product.
type ProductEvent struct {
	ASIN         string    `json:"asin"`
	Title        string    `json:"title"`
	ProductType  string    `json:"product_type"`
	MerchSource  string    `json:"merch_source"`
	URL          string    `json:"url"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Topic names for published events.
const (
	TopicProductDiscovered = "product.discovered"
)

// Pipeline holds every collaborator the run entry points need.
type Pipeline struct {
	discoverer *discover.Discoverer
	tracker    *crawlstate.Tracker
	collector  *serp.Collector
	trends     *scoring.TrendEngine
	keywords   *scoring.KeywordEngine

	fetcher   merch.Fetcher
	limiter   hostLimiter
	pauser    merch.Pauser
	delays    delaySource
	extractor *extract.Extractor
	products  merch.ProductStore
	serpStore merch.SerpStore
	blobs     merch.BlobStore
	publisher merch.Publisher
	hasher    merch.Hasher
	clock     merch.Clock
	settings  merch.Settings
	baseURL   string
	aliasName string

	archivePrefix      string
	archiveContentType string

	logger *zap.Logger
}

// Options bundles the pipeline collaborators. Blob store and publisher
// are optional; everything else is required.
type Options struct {
	Discoverer *discover.Discoverer
	Tracker    *crawlstate.Tracker
	Collector  *serp.Collector
	Trends     *scoring.TrendEngine
	Keywords   *scoring.KeywordEngine
	Fetcher    merch.Fetcher
	Limiter    hostLimiter
	Pauser     merch.Pauser
	Delays     delaySource
	Extractor  *extract.Extractor
	Products   merch.ProductStore
	SerpStore  merch.SerpStore
	Blobs      merch.BlobStore
	Publisher  merch.Publisher
	Hasher     merch.Hasher
	Clock      merch.Clock
	Settings   merch.Settings
	BaseURL    string
	Alias      string

	// ArchivePrefix and ArchiveContentType shape the blob archive writes;
	// both have sensible defaults.
	ArchivePrefix      string
	ArchiveContentType string

	Logger *zap.Logger
}

// New builds a Pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		discoverer: opts.Discoverer,
		tracker:    opts.Tracker,
		collector:  opts.Collector,
		trends:     opts.Trends,
		keywords:   opts.Keywords,
		fetcher:    opts.Fetcher,
		limiter:    opts.Limiter,
		pauser:     opts.Pauser,
		delays:     opts.Delays,
		extractor:  opts.Extractor,
		products:   opts.Products,
		serpStore:  opts.SerpStore,
		blobs:      opts.Blobs,
		publisher:  opts.Publisher,
		hasher:     opts.Hasher,
		clock:      opts.Clock,
		settings:   opts.Settings,
		baseURL:    opts.BaseURL,
		aliasName:  firstNonEmpty(opts.Alias, "com"),

		archivePrefix:      firstNonEmpty(opts.ArchivePrefix, "pages"),
		archiveContentType: firstNonEmpty(opts.ArchiveContentType, "text/html; charset=utf-8"),

		logger: logger,
	}
}

// RunDiscovery sweeps for new candidates, tracks them, then crawls the
// due set. Per-item failures feed the failure backoff instead of
// aborting the run.
func (p *Pipeline) RunDiscovery(ctx context.Context) (merch.DiscoverySummary, error) {
	var summary merch.DiscoverySummary

	candidates, err := p.discoverer.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("discover candidates: %w", err)
	}
	summary.Candidates = len(candidates)
	for _, candidate := range candidates {
		if err := p.tracker.Track(ctx, candidate.ASIN, candidate.Source); err != nil {
			p.logger.Warn("track candidate failed",
				zap.String("asin", candidate.ASIN), zap.Error(err))
		}
	}

	due, err := p.tracker.Due(ctx, p.settings.MaxItemsPerRun)
	if err != nil {
		return summary, fmt.Errorf("load due set: %w", err)
	}
	telemetry.SetCrawlDue(len(due))

	for _, state := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		saved, err := p.crawlOne(ctx, state.ASIN)
		if err != nil {
			summary.Errored++
			p.logger.Warn("crawl failed", zap.String("asin", state.ASIN), zap.Error(err))
		} else if saved {
			summary.Saved++
		}
		p.pause(ctx)
	}

	p.logger.Info("discovery run finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("saved", summary.Saved),
		zap.Int("errored", summary.Errored))
	return summary, nil
}

// crawlOne fetches and processes a single detail page. The returned
// bool reports whether a product row was written.
func (p *Pipeline) crawlOne(ctx context.Context, asin string) (bool, error) {
	detailURL := p.baseURL + "/dp/" + asin
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, detailURL); err != nil {
			return false, err
		}
	}

	resp, err := p.fetcher.Fetch(ctx, merch.FetchRequest{URL: detailURL, Referer: p.baseURL})
	if err != nil {
		telemetry.ObserveFetch(detailURL, "error", 0)
		if _, recErr := p.tracker.Record(ctx, asin, crawlstate.Outcome{}); recErr != nil {
			p.logger.Error("record failure outcome", zap.String("asin", asin), zap.Error(recErr))
		}
		return false, err
	}
	telemetry.ObserveFetch(detailURL, "ok", resp.Duration)

	hash, err := p.hasher.Hash(resp.Body)
	if err != nil {
		return false, fmt.Errorf("hash body: %w", err)
	}
	p.archive(ctx, asin, resp.Body)

	result, err := p.extractor.Extract(resp.Body, resp.URL, detailURL)
	if err != nil {
		if _, recErr := p.tracker.Record(ctx, asin, crawlstate.Outcome{}); recErr != nil {
			p.logger.Error("record failure outcome", zap.String("asin", asin), zap.Error(recErr))
		}
		return false, fmt.Errorf("extract: %w", err)
	}

	for _, variant := range result.VariantASINs {
		if err := p.tracker.Track(ctx, variant, "variant"); err != nil {
			p.logger.Debug("track variant failed", zap.String("asin", variant), zap.Error(err))
		}
	}

	saved := false
	movement := false
	if result.Product != nil {
		product := *result.Product
		product.LastSeen = p.clock.Now()

		existing, err := p.products.GetProduct(ctx, asin)
		if err == nil {
			movement = productMoved(existing, product)
		} else if !errors.Is(err, merch.ErrNotFound) {
			return false, fmt.Errorf("load existing product: %w", err)
		}

		inserted, err := p.products.UpsertProduct(ctx, product)
		if err != nil {
			return false, fmt.Errorf("save product: %w", err)
		}
		saved = true
		telemetry.ObserveProductSaved(inserted)
		telemetry.ObserveMerchDetection(string(product.MerchSource))
		if inserted {
			p.publish(ctx, product)
		}
	}

	if _, err := p.tracker.Record(ctx, asin, crawlstate.Outcome{
		Success:        true,
		ContentHash:    hash,
		ActiveMovement: movement,
	}); err != nil {
		return saved, fmt.Errorf("record outcome: %w", err)
	}
	return saved, nil
}

// productMoved reports real market motion: a rank or review shift since
// the stored snapshot.
func productMoved(existing, fresh merch.Product) bool {
	if fresh.BSR != nil && existing.BSR != nil && *fresh.BSR != *existing.BSR {
		return true
	}
	if fresh.ReviewCount != nil && existing.ReviewCount != nil && *fresh.ReviewCount != *existing.ReviewCount {
		return true
	}
	return false
}

func (p *Pipeline) archive(ctx context.Context, asin string, body []byte) {
	if p.blobs == nil {
		return
	}
	path := fmt.Sprintf("%s/%s/%s.html", p.archivePrefix, asin, p.clock.Now().UTC().Format("20060102T150405Z"))
	if _, err := p.blobs.PutObject(ctx, path, p.archiveContentType, body); err != nil {
		p.logger.Warn("archive page failed", zap.String("asin", asin), zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, product merch.Product) {
	if p.publisher == nil {
		return
	}
	event := ProductEvent{
		ASIN:         product.ASIN,
		Title:        product.Title,
		ProductType:  string(product.ProductType),
		MerchSource:  string(product.MerchSource),
		URL:          product.URL,
		DiscoveredAt: product.LastSeen,
	}
	if _, err := p.publisher.Publish(ctx, TopicProductDiscovered, event); err != nil {
		p.logger.Warn("publish discovery event failed",
			zap.String("asin", product.ASIN), zap.Error(err))
	}
}

func (p *Pipeline) pause(ctx context.Context) {
	if p.pauser == nil || p.delays == nil {
		return
	}
	p.pauser.Pause(ctx, p.delays.Next(p.settings.MinDelayMillis, p.settings.MaxDelayMillis))
}

// EnqueueKeywords queues one SERP job per keyword that does not already
// have a pending job.
func (p *Pipeline) EnqueueKeywords(ctx context.Context, keywords []string, alias string, priority int) (int, error) {
	pending, err := p.serpStore.PendingJobs(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("load pending jobs: %w", err)
	}
	queued := make(map[string]bool, len(pending))
	for _, job := range pending {
		queued[job.Keyword+"\x00"+job.Alias] = true
	}

	enqueued := 0
	for _, keyword := range keywords {
		if queued[keyword+"\x00"+alias] {
			continue
		}
		job := merch.SerpJob{
			ID:          uuid.NewString(),
			Keyword:     keyword,
			Alias:       alias,
			Priority:    priority,
			Status:      merch.SerpJobPending,
			RequestedAt: p.clock.Now(),
		}
		if err := p.serpStore.EnqueueJob(ctx, job); err != nil {
			return enqueued, fmt.Errorf("enqueue %q: %w", keyword, err)
		}
		enqueued++
	}
	return enqueued, nil
}

// RunSerp enqueues the configured keywords and drains one batch.
func (p *Pipeline) RunSerp(ctx context.Context) (merch.SerpRunSummary, error) {
	if _, err := p.EnqueueKeywords(ctx, p.settings.SearchKeywords, p.aliasName, 0); err != nil {
		return merch.SerpRunSummary{}, err
	}
	summary, err := p.collector.Run(ctx)
	if err != nil {
		return summary, err
	}
	telemetry.ObserveSerpJob("batch")
	return summary, nil
}

// RunMetrics recomputes product trends, then keyword scorecards.
func (p *Pipeline) RunMetrics(ctx context.Context) (merch.MetricsRunSummary, error) {
	var summary merch.MetricsRunSummary

	trendCount, err := p.trends.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("trend run: %w", err)
	}
	summary.TrendUpserted = trendCount

	keywordCount, err := p.keywords.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("keyword run: %w", err)
	}
	summary.KeywordUpserted = keywordCount
	for i := 0; i < keywordCount; i++ {
		telemetry.ObserveKeywordScore()
	}

	p.logger.Info("metrics run finished",
		zap.Int("trend_rows", summary.TrendUpserted),
		zap.Int("keyword_rows", summary.KeywordUpserted))
	return summary, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
