package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives the breaker without real waits.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker() (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	b := NewBreaker()
	b.now = clock.Now
	return b, clock
}

func TestBreakerOpensAfterThresholdInWindow(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.NoError(t, b.Allow(), "breaker must stay closed below threshold")
	}

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Allow()
	assert.Error(t, err, "open breaker must short-circuit without a client call")
}

func TestBreakerIgnoresFailuresOutsideWindow(t *testing.T) {
	b, clock := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}

	// The old failures age out of the 120s window.
	clock.Advance(121 * time.Second)
	b.RecordFailure()

	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerCountsFailuresAcrossInterleavedSuccesses(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	b.RecordFailure()

	assert.Equal(t, BreakerOpen, b.State(), "a flapping outage must still shed load")
	assert.Error(t, b.Allow())
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b, clock := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.Error(t, b.Allow())

	clock.Advance(60 * time.Second)
	assert.Equal(t, BreakerHalfOpen, b.State())

	// Exactly one trial call is admitted.
	assert.NoError(t, b.Allow())
	assert.Error(t, b.Allow(), "second call during the trial must be rejected")
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.Advance(60 * time.Second)
	assert.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())

	// Window is reset: a single failure does not re-open.
	b.RecordFailure()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerTrialFailureReopensAndRestartsTimer(t *testing.T) {
	b, clock := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.Advance(60 * time.Second)
	assert.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.Error(t, b.Allow())

	// Cool-off restarted from the trial failure.
	clock.Advance(59 * time.Second)
	assert.Error(t, b.Allow())
	clock.Advance(time.Second)
	assert.NoError(t, b.Allow())
}
