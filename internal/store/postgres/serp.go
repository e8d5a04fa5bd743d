package postgres

import (
	"context"
	"fmt"

	"github.com/merchwatch/crawler/internal/merch"
)

// SerpStore persists SERP snapshots and the job queue.
type SerpStore struct {
	pool Pool
}

// NewSerpStore wraps a pool.
func NewSerpStore(pool Pool) *SerpStore {
	return &SerpStore{pool: pool}
}

const deleteSnapshotSQL = `
DELETE FROM serp_snapshots WHERE keyword = $1 AND alias = $2`

const insertSnapshotSQL = `
INSERT INTO serp_snapshots (
	keyword, alias, page, rank_position, asin, title, brand, price_cents,
	rating, review_count, is_merch, product_type, fetched_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

// ReplaceSnapshot swaps all rows for the pair inside one transaction so
// readers never observe a partial snapshot.
func (s *SerpStore) ReplaceSnapshot(ctx context.Context, keyword, alias string, rows []merch.SerpSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteSnapshotSQL, keyword, alias); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	for _, row := range rows {
		if _, err := tx.Exec(ctx, insertSnapshotSQL,
			row.Keyword, row.Alias, row.Page, row.RankPosition, row.ASIN,
			row.Title, row.Brand, row.PriceCents, row.Rating, row.ReviewCount,
			row.IsMerch, row.ProductType, row.FetchedAt,
		); err != nil {
			return fmt.Errorf("insert snapshot row: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const selectSnapshotSQL = `
SELECT keyword, alias, page, rank_position, asin, title, brand, price_cents,
       rating, review_count, is_merch, product_type, fetched_at
FROM serp_snapshots
WHERE keyword = $1 AND alias = $2
ORDER BY rank_position ASC`

// LatestSnapshot returns the current snapshot set ordered by rank.
func (s *SerpStore) LatestSnapshot(ctx context.Context, keyword, alias string) ([]merch.SerpSnapshot, error) {
	rows, err := s.pool.Query(ctx, selectSnapshotSQL, keyword, alias)
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	defer rows.Close()

	var out []merch.SerpSnapshot
	for rows.Next() {
		var row merch.SerpSnapshot
		if err := rows.Scan(
			&row.Keyword, &row.Alias, &row.Page, &row.RankPosition, &row.ASIN,
			&row.Title, &row.Brand, &row.PriceCents, &row.Rating, &row.ReviewCount,
			&row.IsMerch, &row.ProductType, &row.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return out, nil
}

const insertJobSQL = `
INSERT INTO serp_jobs (id, keyword, alias, priority, status, requested_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING`

// EnqueueJob stores a pending job.
func (s *SerpStore) EnqueueJob(ctx context.Context, job merch.SerpJob) error {
	if _, err := s.pool.Exec(ctx, insertJobSQL,
		job.ID, job.Keyword, job.Alias, job.Priority, job.Status, job.RequestedAt,
	); err != nil {
		return fmt.Errorf("enqueue serp job: %w", err)
	}
	return nil
}

const selectPendingJobsSQL = `
SELECT id, keyword, alias, priority, status, requested_at, started_at, finished_at, error_text
FROM serp_jobs
WHERE status = 'pending'
ORDER BY priority DESC, requested_at ASC
LIMIT NULLIF($1, 0)`

// PendingJobs returns pending jobs, priority desc then requested asc.
// A limit <= 0 means no limit, matching the memory store.
func (s *SerpStore) PendingJobs(ctx context.Context, limit int) ([]merch.SerpJob, error) {
	if limit < 0 {
		limit = 0
	}
	rows, err := s.pool.Query(ctx, selectPendingJobsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}
	defer rows.Close()

	var out []merch.SerpJob
	for rows.Next() {
		var job merch.SerpJob
		if err := rows.Scan(
			&job.ID, &job.Keyword, &job.Alias, &job.Priority, &job.Status,
			&job.RequestedAt, &job.StartedAt, &job.FinishedAt, &job.ErrorText,
		); err != nil {
			return nil, fmt.Errorf("scan serp job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

const updateJobStatusSQL = `
UPDATE serp_jobs
SET status = $2,
    error_text = $3,
    started_at = CASE WHEN $2 = 'processing' AND started_at IS NULL THEN NOW() ELSE started_at END,
    finished_at = CASE WHEN $2 IN ('completed', 'error') THEN NOW() ELSE finished_at END
WHERE id = $1`

// UpdateJobStatus transitions a job, stamping start/finish times.
func (s *SerpStore) UpdateJobStatus(ctx context.Context, jobID string, status merch.SerpJobStatus, errText string) error {
	tag, err := s.pool.Exec(ctx, updateJobStatusSQL, jobID, status, errText)
	if err != nil {
		return fmt.Errorf("update serp job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return merch.ErrNotFound
	}
	return nil
}

const selectTrackedKeywordsSQL = `
SELECT DISTINCT keyword, alias
FROM serp_snapshots
ORDER BY keyword, alias`

// TrackedKeywords lists distinct (keyword, alias) pairs with snapshots.
func (s *SerpStore) TrackedKeywords(ctx context.Context) ([]merch.SerpJob, error) {
	rows, err := s.pool.Query(ctx, selectTrackedKeywordsSQL)
	if err != nil {
		return nil, fmt.Errorf("select tracked keywords: %w", err)
	}
	defer rows.Close()

	var out []merch.SerpJob
	for rows.Next() {
		var job merch.SerpJob
		if err := rows.Scan(&job.Keyword, &job.Alias); err != nil {
			return nil, fmt.Errorf("scan tracked keyword: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked keywords: %w", err)
	}
	return out, nil
}
