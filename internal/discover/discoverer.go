package discover

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/extract"
	"github.com/merchwatch/crawler/internal/merch"
)

// Candidate is one deduplicated detail-page lead.
type Candidate struct {
	ASIN   string
	URL    string
	Source string
}

// Candidate source tags.
const (
	SourceListing = "listing"
	SourceSearch  = "search"
)

type hostLimiter interface {
	Wait(ctx context.Context, url string) error
}

type delaySource interface {
	Next(minMillis, maxMillis int) time.Duration
}

// Discoverer sweeps configured listing paths and seeded searches for
// candidate ASINs. It fetches only listing/search pages; detail pages
// belong to the crawl pipeline.
type Discoverer struct {
	fetcher  merch.Fetcher
	limiter  hostLimiter
	pauser   merch.Pauser
	delays   delaySource
	settings merch.Settings
	baseURL  string
	logger   *zap.Logger
}

// New builds a Discoverer.
func New(
	fetcher merch.Fetcher,
	limiter hostLimiter,
	pauser merch.Pauser,
	delays delaySource,
	settings merch.Settings,
	baseURL string,
	logger *zap.Logger,
) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		fetcher:  fetcher,
		limiter:  limiter,
		pauser:   pauser,
		delays:   delays,
		settings: settings,
		baseURL:  baseURL,
		logger:   logger,
	}
}

// Run executes both sweeps and returns deduplicated candidates, capped
// at MaxItemsPerRun. Fetching stops as soon as the budget is full;
// single-page failures are logged and skipped; the run errors only on
// context cancellation.
func (d *Discoverer) Run(ctx context.Context) ([]Candidate, error) {
	seen := make(map[string]bool)
	var out []Candidate
	full := func() bool {
		return d.settings.MaxItemsPerRun > 0 && len(out) >= d.settings.MaxItemsPerRun
	}
	add := func(asin, canonical, source string) {
		if seen[asin] || full() {
			return
		}
		seen[asin] = true
		out = append(out, Candidate{ASIN: asin, URL: canonical, Source: source})
	}

	if d.settings.DiscoverBestSellers && !full() {
		if err := d.sweepListings(ctx, add, full); err != nil {
			return out, err
		}
	}
	if d.settings.DiscoverSearch && !full() {
		if err := d.sweepSearches(ctx, add, full); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (d *Discoverer) sweepListings(ctx context.Context, add func(asin, url, source string), full func() bool) error {
	budget := d.settings.ListingPageBudget
	if budget <= 0 {
		budget = 1
	}
	for _, path := range d.settings.ListingPaths {
		for page := 1; page <= budget; page++ {
			if full() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			pageURL := ListingPageURL(d.baseURL, path, page)
			found, err := d.collectPage(ctx, pageURL, SourceListing, add)
			if err != nil {
				d.logger.Warn("listing page failed",
					zap.String("url", pageURL), zap.Error(err))
				d.pause(ctx)
				continue
			}
			// An empty page means the category ran out; stop paging.
			if found == 0 {
				break
			}
			d.pause(ctx)
		}
	}
	return nil
}

func (d *Discoverer) sweepSearches(ctx context.Context, add func(asin, url, source string), full func() bool) error {
	budget := d.settings.SearchPageBudget
	if budget <= 0 {
		budget = 1
	}
	for _, keyword := range d.settings.SearchKeywords {
		query := SearchQuery{
			Keyword:  keyword,
			Category: d.settings.SearchCategory,
			Sort:     d.settings.SearchSort,
			Filter:   d.settings.SearchFilter,
			Include:  d.settings.IncludeKeywords,
			Exclude:  d.settings.ExcludeKeywords,
		}
		for page := 1; page <= budget; page++ {
			if full() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			pageURL := SearchPageURL(d.baseURL, query, page)
			found, err := d.collectPage(ctx, pageURL, SourceSearch, add)
			if err != nil {
				d.logger.Warn("search page failed",
					zap.String("keyword", keyword), zap.Int("page", page), zap.Error(err))
				d.pause(ctx)
				continue
			}
			if found == 0 {
				break
			}
			d.pause(ctx)
		}
	}
	return nil
}

// collectPage fetches one page and feeds every canonicalizable detail
// link to add. It returns how many links the page yielded, counting
// duplicates, so callers can tell an exhausted category from one whose
// links were all seen before.
func (d *Discoverer) collectPage(ctx context.Context, pageURL, source string, add func(asin, url, source string)) (int, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, pageURL); err != nil {
			return 0, err
		}
	}
	resp, err := d.fetcher.Fetch(ctx, merch.FetchRequest{URL: pageURL, Referer: d.baseURL})
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	links, err := extract.DetailLinks(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}
	for _, href := range links {
		canonical, asin, err := Canonicalize(d.baseURL, href)
		if err != nil {
			continue
		}
		add(asin, canonical, source)
	}
	return len(links), nil
}

func (d *Discoverer) pause(ctx context.Context) {
	if d.pauser == nil || d.delays == nil {
		return
	}
	d.pauser.Pause(ctx, d.delays.Next(d.settings.MinDelayMillis, d.settings.MaxDelayMillis))
}
