package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/merchwatch/crawler/internal/merch"
)

// CrawlStateStore persists per-ASIN scheduling rows.
type CrawlStateStore struct {
	pool Pool
}

// NewCrawlStateStore wraps a pool.
func NewCrawlStateStore(pool Pool) *CrawlStateStore {
	return &CrawlStateStore{pool: pool}
}

const selectCrawlStateSQL = `
SELECT asin, priority_tier, next_due, last_hash, unchanged_runs, fail_count,
       last_seen_at, inactive, source
FROM crawl_state
WHERE asin = $1`

// Get returns the row for an ASIN or merch.ErrNotFound.
func (s *CrawlStateStore) Get(ctx context.Context, asin string) (merch.CrawlState, error) {
	var st merch.CrawlState
	err := s.pool.QueryRow(ctx, selectCrawlStateSQL, asin).Scan(
		&st.ASIN, &st.PriorityTier, &st.NextDue, &st.LastHash, &st.UnchangedRuns,
		&st.FailCount, &st.LastSeenAt, &st.Inactive, &st.Source,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return merch.CrawlState{}, merch.ErrNotFound
	}
	if err != nil {
		return merch.CrawlState{}, fmt.Errorf("select crawl state: %w", err)
	}
	return st, nil
}

const upsertCrawlStateSQL = `
INSERT INTO crawl_state (
	asin, priority_tier, next_due, last_hash, unchanged_runs, fail_count,
	last_seen_at, inactive, source
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (asin) DO UPDATE SET
	priority_tier = EXCLUDED.priority_tier,
	next_due = EXCLUDED.next_due,
	last_hash = EXCLUDED.last_hash,
	unchanged_runs = EXCLUDED.unchanged_runs,
	fail_count = EXCLUDED.fail_count,
	last_seen_at = EXCLUDED.last_seen_at,
	inactive = EXCLUDED.inactive,
	source = EXCLUDED.source`

// Upsert writes the row.
func (s *CrawlStateStore) Upsert(ctx context.Context, state merch.CrawlState) error {
	if _, err := s.pool.Exec(ctx, upsertCrawlStateSQL,
		state.ASIN, state.PriorityTier, state.NextDue, state.LastHash,
		state.UnchangedRuns, state.FailCount, state.LastSeenAt, state.Inactive,
		state.Source,
	); err != nil {
		return fmt.Errorf("upsert crawl state: %w", err)
	}
	return nil
}

const selectDueSQL = `
SELECT asin, priority_tier, next_due, last_hash, unchanged_runs, fail_count,
       last_seen_at, inactive, source
FROM crawl_state
WHERE inactive = FALSE AND next_due <= $1
ORDER BY priority_tier ASC, next_due ASC
LIMIT NULLIF($2, 0)`

// Due returns active rows with next_due <= now, most urgent tier first.
// A limit <= 0 means no limit, matching the memory store.
func (s *CrawlStateStore) Due(ctx context.Context, now time.Time, limit int) ([]merch.CrawlState, error) {
	if limit < 0 {
		limit = 0
	}
	rows, err := s.pool.Query(ctx, selectDueSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due: %w", err)
	}
	defer rows.Close()

	var out []merch.CrawlState
	for rows.Next() {
		var st merch.CrawlState
		if err := rows.Scan(
			&st.ASIN, &st.PriorityTier, &st.NextDue, &st.LastHash, &st.UnchangedRuns,
			&st.FailCount, &st.LastSeenAt, &st.Inactive, &st.Source,
		); err != nil {
			return nil, fmt.Errorf("scan crawl state: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due: %w", err)
	}
	return out, nil
}
