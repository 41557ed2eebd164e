// Package retry is the single retry controller shared by the aggregator and
// the completion proxy.
//
// Every layer that wants to retry consults the same State and the same
// cumulative-wait ceiling. Keeping one controller prevents independent
// per-layer retry counters from compounding their backoff on top of each
// other.
package retry

import (
	"context"
	"time"

	"github.com/alpaca-network/gatewayz-relay/gateways"
)

// Policy holds the backoff tuning knobs. Zero values are replaced by the
// defaults from DefaultPolicy.
type Policy struct {
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// Multiplier scales the delay per attempt (exponential backoff).
	Multiplier float64
	// MaxDelay caps a single computed wait.
	MaxDelay time.Duration
	// Ceiling caps the cumulative wait across all attempts of one
	// operation. Once a computed wait would push past it, the operation
	// gives up regardless of remaining attempts.
	Ceiling time.Duration
	// MaxAttempts bounds the number of retries.
	MaxAttempts int
}

// DefaultPolicy returns the stock backoff: 1s base doubling per attempt,
// 10s per-attempt cap, 30s cumulative ceiling, 5 attempts.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Ceiling:     30 * time.Second,
		MaxAttempts: 5,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Ceiling <= 0 {
		p.Ceiling = d.Ceiling
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// State tracks one in-flight operation's retry history. It is owned by that
// operation and destroyed with it; never shared.
type State struct {
	// Attempt counts completed attempts, starting at 0.
	Attempt int
	// CumulativeWait is the total backoff spent so far. Monotonically
	// increasing; never exceeds the policy ceiling.
	CumulativeWait time.Duration
	// LastClass is the classification of the most recent failure.
	LastClass gateways.ErrorClass
}

// Decision is the controller's verdict for one failure.
type Decision struct {
	// Retry is false when the operation must terminate as failed.
	Retry bool
	// Delay is how long to back off before the next attempt.
	Delay time.Duration
}

// Next classifies err, updates st, and decides whether to retry.
//
// Fatal errors and cancellations never retry. Rate-limited errors honour an
// upstream Retry-After hint in place of the computed exponential delay, but
// the hint is still subject to the cumulative ceiling.
func (p Policy) Next(err error, st *State) Decision {
	p = p.withDefaults()

	if gateways.IsCancellation(err) {
		return Decision{}
	}

	st.LastClass = gateways.Classify(err)
	if st.LastClass == gateways.ClassFatal {
		return Decision{}
	}
	if st.Attempt >= p.MaxAttempts {
		return Decision{}
	}

	delay := p.delayFor(st.Attempt)
	if st.LastClass == gateways.ClassRateLimited {
		if hint := gateways.HintedDelay(err); hint > 0 {
			delay = hint
		}
	}

	if st.CumulativeWait+delay > p.Ceiling {
		return Decision{}
	}

	st.Attempt++
	st.CumulativeWait += delay
	return Decision{Retry: true, Delay: delay}
}

// delayFor computes the capped exponential delay for a zero-based attempt.
func (p Policy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Wait blocks for d or until ctx is cancelled, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
