package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// TimerPauser sleeps for the requested delay, returning early when the
// context is canceled.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (p TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// JitterDelay picks a uniform random delay in [minMillis, maxMillis].
// Degenerate bounds collapse to minMillis.
type JitterDelay struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitterDelay seeds the jitter source.
func NewJitterDelay() *JitterDelay {
	return &JitterDelay{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next returns the next jittered delay.
func (j *JitterDelay) Next(minMillis, maxMillis int) time.Duration {
	if minMillis < 0 {
		minMillis = 0
	}
	if maxMillis <= minMillis {
		return time.Duration(minMillis) * time.Millisecond
	}
	j.mu.Lock()
	n := j.rng.Intn(maxMillis - minMillis + 1)
	j.mu.Unlock()
	return time.Duration(minMillis+n) * time.Millisecond
}
