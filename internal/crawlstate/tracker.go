// Package crawlstate maintains per-ASIN recrawl priority and backoff.
package crawlstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/merchwatch/crawler/internal/merch"
)

// Policy controls tier demotion, failure backoff and recrawl cadence.
type Policy struct {
	// RecrawlHoursByTier maps priority tier (index) to recrawl interval,
	// fastest tier first. The last entry is the floor tier.
	RecrawlHoursByTier []int
	// UnchangedThreshold is the run count after which an unchanged item
	// is demoted one tier.
	UnchangedThreshold int
	// MaxFailures deactivates an item once exceeded.
	MaxFailures int
	// FailureBackoffBase seeds the exponential failure backoff.
	FailureBackoffBase time.Duration
	// FailureBackoffMax caps the failure backoff.
	FailureBackoffMax time.Duration
}

// DefaultPolicy mirrors the stock tier cadence: 6h, daily, 3-day, weekly.
func DefaultPolicy() Policy {
	return Policy{
		RecrawlHoursByTier: []int{6, 24, 72, 168},
		UnchangedThreshold: 3,
		MaxFailures:        5,
		FailureBackoffBase: 30 * time.Minute,
		FailureBackoffMax:  24 * time.Hour,
	}
}

func (p Policy) floorTier() int {
	if len(p.RecrawlHoursByTier) == 0 {
		return 0
	}
	return len(p.RecrawlHoursByTier) - 1
}

func (p Policy) recrawlInterval(tier int) time.Duration {
	if len(p.RecrawlHoursByTier) == 0 {
		return 24 * time.Hour
	}
	if tier < 0 {
		tier = 0
	}
	if tier > p.floorTier() {
		tier = p.floorTier()
	}
	return time.Duration(p.RecrawlHoursByTier[tier]) * time.Hour
}

// failureBackoff doubles per consecutive failure, capped.
func (p Policy) failureBackoff(failCount int) time.Duration {
	backoff := p.FailureBackoffBase
	for i := 1; i < failCount; i++ {
		backoff *= 2
		if backoff >= p.FailureBackoffMax {
			return p.FailureBackoffMax
		}
	}
	if backoff > p.FailureBackoffMax {
		return p.FailureBackoffMax
	}
	return backoff
}

// Outcome describes one crawl attempt for transition purposes.
type Outcome struct {
	// Success is false for fetch/parse failures.
	Success bool
	// ContentHash of the fetched page, set on success.
	ContentHash string
	// ActiveMovement promotes the item toward the most urgent tier when
	// the change indicates real market motion (rank or review shifts).
	ActiveMovement bool
}

// Apply transitions a state row after one crawl attempt. The input is
// not mutated.
func Apply(policy Policy, state merch.CrawlState, outcome Outcome, now time.Time) merch.CrawlState {
	next := state
	if !outcome.Success {
		next.FailCount++
		if next.FailCount > policy.MaxFailures {
			next.Inactive = true
			return next
		}
		next.NextDue = now.Add(policy.failureBackoff(next.FailCount))
		return next
	}

	next.FailCount = 0
	next.LastSeenAt = &now

	if outcome.ContentHash != "" && outcome.ContentHash == state.LastHash {
		next.UnchangedRuns++
		if next.UnchangedRuns >= policy.UnchangedThreshold && next.PriorityTier < policy.floorTier() {
			next.PriorityTier++
			next.UnchangedRuns = 0
		}
	} else {
		next.UnchangedRuns = 0
		next.LastHash = outcome.ContentHash
		if outcome.ActiveMovement && next.PriorityTier > 0 {
			next.PriorityTier--
		}
	}

	next.NextDue = now.Add(policy.recrawlInterval(next.PriorityTier))
	return next
}

// Tracker applies the transition policy against the state store.
type Tracker struct {
	store  merch.CrawlStateStore
	policy Policy
	clock  merch.Clock
	logger *zap.Logger
}

// New builds a Tracker.
func New(store merch.CrawlStateStore, policy Policy, clock merch.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(policy.RecrawlHoursByTier) == 0 {
		policy = DefaultPolicy()
	}
	return &Tracker{store: store, policy: policy, clock: clock, logger: logger}
}

// Track ensures a row exists for a freshly discovered ASIN. Existing
// rows are left untouched.
func (t *Tracker) Track(ctx context.Context, asin, source string) error {
	_, err := t.store.Get(ctx, asin)
	if err == nil {
		return nil
	}
	if !errors.Is(err, merch.ErrNotFound) {
		return fmt.Errorf("load crawl state: %w", err)
	}
	state := merch.CrawlState{
		ASIN:         asin,
		PriorityTier: 0,
		NextDue:      t.clock.Now(),
		Source:       source,
	}
	if err := t.store.Upsert(ctx, state); err != nil {
		return fmt.Errorf("insert crawl state: %w", err)
	}
	return nil
}

// Record applies one attempt outcome and persists the transition.
func (t *Tracker) Record(ctx context.Context, asin string, outcome Outcome) (merch.CrawlState, error) {
	state, err := t.store.Get(ctx, asin)
	if err != nil {
		if !errors.Is(err, merch.ErrNotFound) {
			return merch.CrawlState{}, fmt.Errorf("load crawl state: %w", err)
		}
		state = merch.CrawlState{ASIN: asin}
	}
	next := Apply(t.policy, state, outcome, t.clock.Now())
	if err := t.store.Upsert(ctx, next); err != nil {
		return merch.CrawlState{}, fmt.Errorf("store crawl state: %w", err)
	}
	if next.Inactive && !state.Inactive {
		t.logger.Info("asin deactivated after repeated failures",
			zap.String("asin", asin), zap.Int("fail_count", next.FailCount))
	}
	return next, nil
}

// Due returns the scheduling order for this run.
func (t *Tracker) Due(ctx context.Context, limit int) ([]merch.CrawlState, error) {
	due, err := t.store.Due(ctx, t.clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("load due set: %w", err)
	}
	return due, nil
}
