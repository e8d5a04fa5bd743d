package merch

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store reads when no row matches.
var ErrNotFound = errors.New("not found")

// ProductStore persists product snapshots and their immutable history.
type ProductStore interface {
	// GetProduct returns the stored snapshot for an ASIN, or ErrNotFound.
	GetProduct(ctx context.Context, asin string) (Product, error)
	// UpsertProduct writes the resolved snapshot, appends one history row,
	// and reports whether the product row was newly inserted.
	UpsertProduct(ctx context.Context, product Product) (inserted bool, err error)
	// History returns history rows for an ASIN captured at or after since,
	// ordered oldest first.
	History(ctx context.Context, asin string, since time.Time) ([]HistorySnapshot, error)
	// ActiveASINs lists ASINs with at least one history row in the window.
	ActiveASINs(ctx context.Context, since time.Time) ([]string, error)
}

// CrawlStateStore persists per-ASIN scheduling rows.
type CrawlStateStore interface {
	Get(ctx context.Context, asin string) (CrawlState, error)
	Upsert(ctx context.Context, state CrawlState) error
	// Due returns active rows with next_due <= now, most urgent tier first,
	// then earliest due first, capped at limit.
	Due(ctx context.Context, now time.Time, limit int) ([]CrawlState, error)
}

// SerpStore persists SERP snapshots and the job queue.
type SerpStore interface {
	// ReplaceSnapshot atomically swaps all snapshot rows for the job's
	// (keyword, alias) with the provided set.
	ReplaceSnapshot(ctx context.Context, keyword, alias string, rows []SerpSnapshot) error
	// LatestSnapshot returns the current snapshot set ordered by rank.
	LatestSnapshot(ctx context.Context, keyword, alias string) ([]SerpSnapshot, error)
	// PendingJobs returns up to limit pending jobs ordered by priority desc,
	// then requested_at asc.
	PendingJobs(ctx context.Context, limit int) ([]SerpJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status SerpJobStatus, errText string) error
	EnqueueJob(ctx context.Context, job SerpJob) error
	// TrackedKeywords lists distinct (keyword, alias) pairs with snapshots.
	TrackedKeywords(ctx context.Context) ([]SerpJob, error)
}

// MetricsStore persists derived daily keyword metrics.
type MetricsStore interface {
	// UpsertDaily overwrites the row for (keyword, alias, day).
	UpsertDaily(ctx context.Context, row KeywordMetricsDaily) error
	// DailyRange returns rows for the pair within [from, to], oldest first.
	DailyRange(ctx context.Context, keyword, alias string, from, to time.Time) ([]KeywordMetricsDaily, error)
	// UpsertTrend overwrites the momentum row for the ASIN.
	UpsertTrend(ctx context.Context, trend ProductTrend) error
}

// SettingsStore reads the keyword-settings singleton row.
type SettingsStore interface {
	Get(ctx context.Context) (Settings, error)
}

// Fetcher fetches a single URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes discovery events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Pauser sleeps politely between requests, honoring context cancellation.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}
