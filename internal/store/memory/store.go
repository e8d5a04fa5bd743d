// Package memory provides in-memory store implementations for tests and
// development runs. Every store mirrors the Postgres semantics, notably
// carry-forward on product upsert and wholesale SERP snapshot replace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/merchwatch/crawler/internal/merch"
)

// ProductStore keeps products and history rows in maps.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]merch.Product
	history  map[string][]merch.HistorySnapshot
}

// NewProductStore constructs an empty ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{
		products: make(map[string]merch.Product),
		history:  make(map[string][]merch.HistorySnapshot),
	}
}

// GetProduct returns the stored snapshot or merch.ErrNotFound.
func (s *ProductStore) GetProduct(_ context.Context, asin string) (merch.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[asin]
	if !ok {
		return merch.Product{}, merch.ErrNotFound
	}
	return product, nil
}

// UpsertProduct resolves carry-forward fields, writes the snapshot and
// appends one history row.
func (s *ProductStore) UpsertProduct(_ context.Context, product merch.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.products[product.ASIN]
	resolved := product
	if exists {
		resolved = merch.ResolveSnapshotFields(existing, product)
	} else {
		resolved.FirstSeen = product.LastSeen
	}
	s.products[product.ASIN] = resolved
	s.history[product.ASIN] = append(s.history[product.ASIN], resolved.Snapshot())
	return !exists, nil
}

// History returns rows captured at or after since, oldest first.
func (s *ProductStore) History(_ context.Context, asin string, since time.Time) ([]merch.HistorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []merch.HistorySnapshot
	for _, row := range s.history[asin] {
		if !row.CapturedAt.Before(since) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CapturedAt.Before(out[j].CapturedAt) })
	return out, nil
}

// ActiveASINs lists ASINs with history in the window, sorted for
// deterministic iteration.
func (s *ProductStore) ActiveASINs(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for asin, rows := range s.history {
		for _, row := range rows {
			if !row.CapturedAt.Before(since) {
				out = append(out, asin)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// CrawlStateStore keeps scheduling rows in a map.
type CrawlStateStore struct {
	mu     sync.RWMutex
	states map[string]merch.CrawlState
}

// NewCrawlStateStore constructs an empty CrawlStateStore.
func NewCrawlStateStore() *CrawlStateStore {
	return &CrawlStateStore{states: make(map[string]merch.CrawlState)}
}

// Get returns the row for an ASIN or merch.ErrNotFound.
func (s *CrawlStateStore) Get(_ context.Context, asin string) (merch.CrawlState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[asin]
	if !ok {
		return merch.CrawlState{}, merch.ErrNotFound
	}
	return state, nil
}

// Upsert writes the row.
func (s *CrawlStateStore) Upsert(_ context.Context, state merch.CrawlState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ASIN] = state
	return nil
}

// Due returns active rows with next_due <= now, most urgent tier first,
// then earliest due first.
func (s *CrawlStateStore) Due(_ context.Context, now time.Time, limit int) ([]merch.CrawlState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []merch.CrawlState
	for _, state := range s.states {
		if !state.Inactive && !state.NextDue.After(now) {
			due = append(due, state)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].PriorityTier != due[j].PriorityTier {
			return due[i].PriorityTier < due[j].PriorityTier
		}
		return due[i].NextDue.Before(due[j].NextDue)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

type serpKey struct{ keyword, alias string }

// SerpStore keeps snapshots and the job queue in memory.
type SerpStore struct {
	mu        sync.RWMutex
	snapshots map[serpKey][]merch.SerpSnapshot
	jobs      map[string]merch.SerpJob
}

// NewSerpStore constructs an empty SerpStore.
func NewSerpStore() *SerpStore {
	return &SerpStore{
		snapshots: make(map[serpKey][]merch.SerpSnapshot),
		jobs:      make(map[string]merch.SerpJob),
	}
}

// ReplaceSnapshot swaps the full snapshot set for the pair.
func (s *SerpStore) ReplaceSnapshot(_ context.Context, keyword, alias string, rows []merch.SerpSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[serpKey{keyword, alias}] = append([]merch.SerpSnapshot(nil), rows...)
	return nil
}

// LatestSnapshot returns the current set ordered by rank position.
func (s *SerpStore) LatestSnapshot(_ context.Context, keyword, alias string) ([]merch.SerpSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := append([]merch.SerpSnapshot(nil), s.snapshots[serpKey{keyword, alias}]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].RankPosition < rows[j].RankPosition })
	return rows, nil
}

// EnqueueJob stores a pending job.
func (s *SerpStore) EnqueueJob(_ context.Context, job merch.SerpJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// PendingJobs returns pending jobs, priority desc then requested asc.
func (s *SerpStore) PendingJobs(_ context.Context, limit int) ([]merch.SerpJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []merch.SerpJob
	for _, job := range s.jobs {
		if job.Status == merch.SerpJobPending {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].RequestedAt.Before(pending[j].RequestedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// UpdateJobStatus transitions a job, stamping start/finish times.
func (s *SerpStore) UpdateJobStatus(_ context.Context, jobID string, status merch.SerpJobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return merch.ErrNotFound
	}
	job.Status = status
	job.ErrorText = errText
	now := time.Now().UTC()
	if status == merch.SerpJobProcessing && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status == merch.SerpJobCompleted || status == merch.SerpJobError {
		job.FinishedAt = &now
	}
	s.jobs[jobID] = job
	return nil
}

// TrackedKeywords lists distinct pairs with a stored snapshot.
func (s *SerpStore) TrackedKeywords(_ context.Context) ([]merch.SerpJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []merch.SerpJob
	for key, rows := range s.snapshots {
		if len(rows) > 0 {
			out = append(out, merch.SerpJob{Keyword: key.keyword, Alias: key.alias})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Keyword != out[j].Keyword {
			return out[i].Keyword < out[j].Keyword
		}
		return out[i].Alias < out[j].Alias
	})
	return out, nil
}

type metricsKey struct {
	keyword, alias string
	day            time.Time
}

// MetricsStore keeps daily keyword metrics and product trends.
type MetricsStore struct {
	mu     sync.RWMutex
	daily  map[metricsKey]merch.KeywordMetricsDaily
	trends map[string]merch.ProductTrend
}

// NewMetricsStore constructs an empty MetricsStore.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{
		daily:  make(map[metricsKey]merch.KeywordMetricsDaily),
		trends: make(map[string]merch.ProductTrend),
	}
}

// UpsertDaily overwrites the row for (keyword, alias, day).
func (s *MetricsStore) UpsertDaily(_ context.Context, row merch.KeywordMetricsDaily) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily[metricsKey{row.Keyword, row.Alias, row.Day}] = row
	return nil
}

// DailyRange returns rows within [from, to], oldest first.
func (s *MetricsStore) DailyRange(_ context.Context, keyword, alias string, from, to time.Time) ([]merch.KeywordMetricsDaily, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []merch.KeywordMetricsDaily
	for key, row := range s.daily {
		if key.keyword != keyword || key.alias != alias {
			continue
		}
		if key.day.Before(from) || key.day.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// UpsertTrend overwrites the momentum row for the ASIN.
func (s *MetricsStore) UpsertTrend(_ context.Context, trend merch.ProductTrend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trends[trend.ASIN] = trend
	return nil
}

// Trend returns the stored momentum row, if any.
func (s *MetricsStore) Trend(asin string) (merch.ProductTrend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trend, ok := s.trends[asin]
	return trend, ok
}

// SettingsStore serves a fixed Settings value.
type SettingsStore struct {
	Settings merch.Settings
}

// NewSettingsStore wraps a settings value.
func NewSettingsStore(settings merch.Settings) *SettingsStore {
	return &SettingsStore{Settings: settings}
}

// Get returns the wrapped settings.
func (s *SettingsStore) Get(_ context.Context) (merch.Settings, error) {
	return s.Settings, nil
}
