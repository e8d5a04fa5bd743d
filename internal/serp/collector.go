// Package serp processes queued keyword snapshot jobs against the
// marketplace search results pages.
package serp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/discover"
	"github.com/merchwatch/crawler/internal/extract"
	"github.com/merchwatch/crawler/internal/merch"
)

type hostLimiter interface {
	Wait(ctx context.Context, url string) error
}

type delaySource interface {
	Next(minMillis, maxMillis int) time.Duration
}

// Collector drains pending SERP jobs: fetch, parse, snapshot-replace.
type Collector struct {
	serp     merch.SerpStore
	fetcher  merch.Fetcher
	limiter  hostLimiter
	pauser   merch.Pauser
	delays   delaySource
	settings merch.Settings
	clock    merch.Clock
	logger   *zap.Logger
}

// New builds a Collector.
func New(
	serp merch.SerpStore,
	fetcher merch.Fetcher,
	limiter hostLimiter,
	pauser merch.Pauser,
	delays delaySource,
	settings merch.Settings,
	clock merch.Clock,
	logger *zap.Logger,
) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		serp:     serp,
		fetcher:  fetcher,
		limiter:  limiter,
		pauser:   pauser,
		delays:   delays,
		settings: settings,
		clock:    clock,
		logger:   logger,
	}
}

// Run drains one batch of pending jobs. A failed job is marked error
// and does not abort the batch.
func (c *Collector) Run(ctx context.Context) (merch.SerpRunSummary, error) {
	batch := c.settings.SerpBatchSize
	if batch <= 0 {
		batch = 10
	}
	jobs, err := c.serp.PendingJobs(ctx, batch)
	if err != nil {
		return merch.SerpRunSummary{}, fmt.Errorf("load pending jobs: %w", err)
	}

	var summary merch.SerpRunSummary
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		inserted, err := c.processJob(ctx, job)
		summary.JobsProcessed++
		if err != nil {
			c.logger.Warn("serp job failed",
				zap.String("job_id", job.ID), zap.String("keyword", job.Keyword), zap.Error(err))
			if statusErr := c.serp.UpdateJobStatus(ctx, job.ID, merch.SerpJobError, err.Error()); statusErr != nil {
				c.logger.Error("serp job status update failed", zap.String("job_id", job.ID), zap.Error(statusErr))
			}
			continue
		}
		summary.SnapshotsInserted += inserted
	}
	return summary, nil
}

func (c *Collector) processJob(ctx context.Context, job merch.SerpJob) (int, error) {
	if err := c.serp.UpdateJobStatus(ctx, job.ID, merch.SerpJobProcessing, ""); err != nil {
		return 0, fmt.Errorf("mark processing: %w", err)
	}

	rows, err := c.collectSnapshot(ctx, job)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("no results for %q", job.Keyword)
	}
	if err := c.serp.ReplaceSnapshot(ctx, job.Keyword, job.Alias, rows); err != nil {
		return 0, fmt.Errorf("replace snapshot: %w", err)
	}
	if err := c.serp.UpdateJobStatus(ctx, job.ID, merch.SerpJobCompleted, ""); err != nil {
		return 0, fmt.Errorf("mark completed: %w", err)
	}
	return len(rows), nil
}

// collectSnapshot fetches the configured page count and assembles rows
// with a run-wide fetched_at and a rank continuous across pages.
func (c *Collector) collectSnapshot(ctx context.Context, job merch.SerpJob) ([]merch.SerpSnapshot, error) {
	base := MarketplaceBase(job.Alias)
	pages := c.settings.SerpPages
	if pages <= 0 {
		pages = 1
	}
	topN := c.settings.SerpTopN
	fetchedAt := c.clock.Now()

	var rows []merch.SerpSnapshot
	seen := make(map[string]bool)
	for page := 1; page <= pages; page++ {
		if topN > 0 && len(rows) >= topN {
			break
		}
		pageURL := discover.SearchPageURL(base, discover.SearchQuery{Keyword: job.Keyword}, page)
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, pageURL); err != nil {
				return nil, err
			}
		}
		resp, err := c.fetcher.Fetch(ctx, merch.FetchRequest{URL: pageURL, Referer: base})
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		results, err := extract.ParseSearchResults(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("parse page %d: %w", page, err)
		}
		if len(results) == 0 {
			break
		}
		for _, r := range results {
			if seen[r.ASIN] {
				continue
			}
			if topN > 0 && len(rows) >= topN {
				break
			}
			seen[r.ASIN] = true
			rows = append(rows, merch.SerpSnapshot{
				Keyword:      job.Keyword,
				Alias:        job.Alias,
				Page:         page,
				RankPosition: len(rows) + 1,
				ASIN:         r.ASIN,
				Title:        r.Title,
				Brand:        r.Brand,
				PriceCents:   r.PriceCents,
				Rating:       r.Rating,
				ReviewCount:  r.ReviewCount,
				IsMerch:      r.IsMerch,
				ProductType:  r.ProductType,
				FetchedAt:    fetchedAt,
			})
		}
		if page < pages && c.pauserReady() {
			c.pauser.Pause(ctx, c.delays.Next(c.settings.MinDelayMillis, c.settings.MaxDelayMillis))
		}
	}
	return rows, nil
}

func (c *Collector) pauserReady() bool {
	return c.pauser != nil && c.delays != nil
}

// MarketplaceBase maps a locale alias to the marketplace origin.
func MarketplaceBase(alias string) string {
	alias = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(alias)), ".")
	if alias == "" {
		alias = "com"
	}
	return "https://www.amazon." + alias
}
