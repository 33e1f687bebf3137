package connectivity

import (
	"sync"
	"time"
)

// DefaultBreakerThreshold is the number of consecutive probe failures
// before the breaker opens.
const DefaultBreakerThreshold = 3

// DefaultBreakerCooldown is how long the breaker stays open before
// allowing a half-open probe.
const DefaultBreakerCooldown = 30 * time.Second

// BreakerState represents the state of a probe breaker.
type BreakerState int

const (
	// BreakerClosed is the normal state, probes run on schedule.
	BreakerClosed BreakerState = iota
	// BreakerOpen means the server has been failing, probes are skipped.
	BreakerOpen
	// BreakerHalfOpen means the cooldown expired, one probe is allowed.
	BreakerHalfOpen
)

// String returns the string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker keeps a repeatedly failing server from being probed at full
// rate. It is the plain closed/open/half-open pattern with a cooldown.
type Breaker struct {
	mu           sync.Mutex
	threshold    int
	cooldown     time.Duration
	failureCount int
	state        BreakerState
	openedAt     time.Time
}

// NewBreaker creates a Breaker with the given threshold and cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     BreakerClosed,
	}
}

// Allow reports whether a probe should run now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess resets the breaker after a reachable probe.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = BreakerClosed
}

// RecordFailure counts a failed probe. Reaching the threshold opens
// the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	if b.failureCount >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		b.state = BreakerHalfOpen
	}
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
