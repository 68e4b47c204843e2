package connection

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Etesie/fauna-typed/internal/rand"
	"github.com/Etesie/fauna-typed/pkg/constants"
)

// Retryer decides how long to wait before retrying a failed request or
// redialing a dropped stream.
type Retryer interface {
	// NextDelay returns the delay before retry number attempt (0-based)
	// and whether to retry at all.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset is called after a successful attempt.
	Reset()
}

// ExponentialBackoffRetryer implements exponential backoff with jitter.
type ExponentialBackoffRetryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// MaxRetries is the maximum number of retries (0 for infinite).
	MaxRetries int

	Jitter bool
	// JitterFactor is the maximum jitter as a fraction of the delay.
	JitterFactor float64
}

// NewExponentialBackoffRetryer returns the retryer used for queries: three
// retries starting at 200ms.
func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   3,
		Jitter:       true,
		JitterFactor: 0.3,
	}
}

func (r *ExponentialBackoffRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter && r.JitterFactor > 0 {
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

func (r *ExponentialBackoffRetryer) Reset() {}

// FixedDelayRetryer waits the same delay between retries.
type FixedDelayRetryer struct {
	Delay time.Duration
	// MaxRetries is the maximum number of retries (0 for infinite).
	MaxRetries int
}

func NewFixedDelayRetryer(delay time.Duration, maxRetries int) *FixedDelayRetryer {
	return &FixedDelayRetryer{Delay: delay, MaxRetries: maxRetries}
}

func (r *FixedDelayRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}

func (r *FixedDelayRetryer) Reset() {}

// NoRetry never retries.
type NoRetry struct{}

func (NoRetry) NextDelay(int, error) (time.Duration, bool) { return 0, false }

func (NoRetry) Reset() {}

// Retry runs fn until it succeeds, fails with an error that is not
// constants.ErrTransient, the retryer gives up, or ctx is done.
func Retry(ctx context.Context, r Retryer, fn func() error) error {
	if r == nil {
		r = NoRetry{}
	}
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			r.Reset()
			return nil
		}
		if !errors.Is(err, constants.ErrTransient) {
			return err
		}
		delay, ok := r.NextDelay(attempt, err)
		if !ok {
			return err
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
