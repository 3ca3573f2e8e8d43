package assessment

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

const (
	breakerWindow    = 120 * time.Second
	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second
)

// Breaker protects the scoring capability from compounding load during an
// outage. Closed: calls pass, failures counted in a sliding window. Open:
// calls short-circuit immediately. Half-open: one trial call after the
// cool-off; success closes the circuit, failure restarts the cool-off.
type Breaker struct {
	mu            sync.Mutex
	state         BreakerState
	failures      []time.Time
	openedAt      time.Time
	trialInFlight bool
	window        time.Duration
	threshold     int
	cooldown      time.Duration
	now           func() time.Time
}

// NewBreaker creates a closed breaker with the standard window, threshold and
// cool-off.
func NewBreaker() *Breaker {
	return &Breaker{
		state:     BreakerClosed,
		window:    breakerWindow,
		threshold: breakerThreshold,
		cooldown:  breakerCooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. When the circuit is open it
// returns an Unavailable failure without touching the client; after the
// cool-off it admits exactly one trial call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			b.trialInFlight = true
			return nil
		}
		return NewUnavailableError(errCircuitOpen)
	case BreakerHalfOpen:
		if b.trialInFlight {
			return NewUnavailableError(errCircuitOpen)
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess closes the circuit after a successful half-open trial and
// resets the failure window. A success while closed leaves the windowed
// failures in place so an intermittent outage still trips the threshold.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.failures = nil
	}
	b.trialInFlight = false
}

// RecordFailure counts a failure. In the closed state the circuit opens once
// the windowed count reaches the threshold; a failed half-open trial reopens
// it and restarts the cool-off timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = now
		b.trialInFlight = false
		b.failures = nil
	case BreakerClosed:
		b.failures = append(b.failures, now)
		b.pruneLocked(now)
		if len(b.failures) >= b.threshold {
			b.state = BreakerOpen
			b.openedAt = now
			b.failures = nil
		}
	case BreakerOpen:
		// Already open; nothing to count.
	}
}

// State returns the current breaker state, transitioning open to half-open if
// the cool-off has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

type circuitOpenError struct{}

func (circuitOpenError) Error() string { return "circuit breaker open" }

var errCircuitOpen = circuitOpenError{}
