// Package merch defines core domain types shared across subsystems.
package merch

import (
	"time"
)

// ProductType classifies the apparel kind of a listing.
type ProductType string

// Product type values, in classification priority order.
const (
	ProductTypeHoodie     ProductType = "hoodie"
	ProductTypeSweatshirt ProductType = "sweatshirt"
	ProductTypeLongSleeve ProductType = "long-sleeve"
	ProductTypeRaglan     ProductType = "raglan"
	ProductTypeVNeck      ProductType = "v-neck"
	ProductTypeTankTop    ProductType = "tank-top"
	ProductTypeTShirt     ProductType = "tshirt"
)

// MerchSource records which detection signal flagged a listing as
// Merch on Demand.
type MerchSource string

// Merch signal provenance tags, most specific first.
const (
	MerchSourceLogo         MerchSource = "logo"
	MerchSourceBadge        MerchSource = "badge/byline"
	MerchSourceSeller       MerchSource = "seller"
	MerchSourceManufacturer MerchSource = "manufacturer"
	MerchSourceJSONLD       MerchSource = "jsonld"
)

// Product is the latest known snapshot of a marketplace listing.
type Product struct {
	ASIN        string      `json:"asin"`
	Title       string      `json:"title"`
	Brand       string      `json:"brand"`
	PriceCents  *int        `json:"price_cents"`
	Rating      *float64    `json:"rating"`
	ReviewCount *int        `json:"review_count"`
	BSR         *int        `json:"bsr"`
	BSRCategory string      `json:"bsr_category"`
	URL         string      `json:"url"`
	ImageURL    string      `json:"image_url"`
	Bullet1     string      `json:"bullet1"`
	Bullet2     string      `json:"bullet2"`
	MerchSource MerchSource `json:"merch_source"`
	ProductType ProductType `json:"product_type"`
	FirstSeen   time.Time   `json:"first_seen"`
	LastSeen    time.Time   `json:"last_seen"`
}

// HistorySnapshot is one append-only history row per successful crawl.
type HistorySnapshot struct {
	ASIN        string      `json:"asin"`
	CapturedAt  time.Time   `json:"captured_at"`
	PriceCents  *int        `json:"price_cents"`
	Rating      *float64    `json:"rating"`
	ReviewCount *int        `json:"review_count"`
	BSR         *int        `json:"bsr"`
	BSRCategory string      `json:"bsr_category"`
	MerchSource MerchSource `json:"merch_source"`
	ProductType ProductType `json:"product_type"`
}

// CrawlState tracks per-ASIN recrawl scheduling.
type CrawlState struct {
	ASIN          string     `json:"asin"`
	PriorityTier  int        `json:"priority_tier"`
	NextDue       time.Time  `json:"next_due"`
	LastHash      string     `json:"last_hash"`
	UnchangedRuns int        `json:"unchanged_runs"`
	FailCount     int        `json:"fail_count"`
	LastSeenAt    *time.Time `json:"last_seen_at"`
	Inactive      bool       `json:"inactive"`
	Source        string     `json:"source"`
}

// SerpSnapshot is one result card from a search results page fetch.
// Snapshots for a (keyword, alias) pair are replaced wholesale per fetch.
type SerpSnapshot struct {
	Keyword      string      `json:"keyword"`
	Alias        string      `json:"alias"`
	Page         int         `json:"page"`
	RankPosition int         `json:"rank_position"`
	ASIN         string      `json:"asin"`
	Title        string      `json:"title"`
	Brand        string      `json:"brand"`
	PriceCents   *int        `json:"price_cents"`
	Rating       *float64    `json:"rating"`
	ReviewCount  *int        `json:"review_count"`
	IsMerch      bool        `json:"is_merch"`
	ProductType  ProductType `json:"product_type"`
	FetchedAt    time.Time   `json:"fetched_at"`
}

// KeywordMetricsDaily is the derived per-day keyword scorecard.
type KeywordMetricsDaily struct {
	Keyword       string    `json:"keyword"`
	Alias         string    `json:"alias"`
	Day           time.Time `json:"day"`
	Difficulty    int       `json:"difficulty"`
	Competition   float64   `json:"competition"`
	Opportunity   int       `json:"opportunity"`
	AvgBSR        *float64  `json:"avg_bsr"`
	MedianBSR     *float64  `json:"median_bsr"`
	AvgReviews    *float64  `json:"avg_reviews"`
	MedianReviews *float64  `json:"median_reviews"`
	MerchShare    float64   `json:"merch_share"`
	BrandEntropy  float64   `json:"brand_entropy"`
	PriceIQR      *float64  `json:"price_iqr"`
	SampleCount   int       `json:"sample_count"`
	Momentum7d    *float64  `json:"momentum_7d"`
	Momentum30d   *float64  `json:"momentum_30d"`
	IntentTags    []string  `json:"intent_tags"`
}

// ProductTrend is the derived per-product momentum row, recomputed per
// metrics run from the history window.
type ProductTrend struct {
	ASIN       string    `json:"asin"`
	ComputedAt time.Time `json:"computed_at"`
	BSRNow     *int      `json:"bsr_now"`
	BSR24h     *int      `json:"bsr_24h"`
	BSR7d      *int      `json:"bsr_7d"`
	Reviews    *int      `json:"reviews_now"`
	Reviews24h *int      `json:"reviews_24h"`
	Reviews7d  *int      `json:"reviews_7d"`
	RatingNow  *float64  `json:"rating_now"`
	Momentum   float64   `json:"momentum"`
}

// SerpJobStatus represents the lifecycle state of a SERP fetch job.
type SerpJobStatus string

// Job status values persisted in the SERP queue.
const (
	SerpJobPending    SerpJobStatus = "pending"
	SerpJobProcessing SerpJobStatus = "processing"
	SerpJobCompleted  SerpJobStatus = "completed"
	SerpJobError      SerpJobStatus = "error"
)

// SerpJob is one queued (keyword, locale alias) snapshot request.
type SerpJob struct {
	ID          string        `json:"id"`
	Keyword     string        `json:"keyword"`
	Alias       string        `json:"alias"`
	Priority    int           `json:"priority"`
	Status      SerpJobStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	ErrorText   string        `json:"error_text,omitempty"`
}

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	URL     string
	Referer string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// DiscoverySummary is returned by the crawl entry point.
type DiscoverySummary struct {
	Candidates int `json:"candidates"`
	Saved      int `json:"saved"`
	Errored    int `json:"errored"`
}

// SerpRunSummary is returned by the SERP-processing entry point.
type SerpRunSummary struct {
	JobsProcessed     int `json:"jobs_processed"`
	SnapshotsInserted int `json:"snapshots_inserted"`
}

// MetricsRunSummary is returned by the metrics entry point.
type MetricsRunSummary struct {
	TrendUpserted   int `json:"trend_upserted"`
	KeywordUpserted int `json:"keyword_upserted"`
}
