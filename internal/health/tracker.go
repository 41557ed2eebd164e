// Package health tracks per-gateway health from observed fetch and
// completion outcomes.
//
// Each gateway moves through a three-state machine:
//
//	healthy  → down      when consecutive failures ≥ FailureThreshold
//	down     → degraded  after RecoveryTimeout elapses (probing)
//	degraded → healthy   when consecutive successes ≥ SuccessThreshold
//	degraded → down      on any failure
//
// The tracker also keeps a rolling average response time per gateway, which
// the aggregator stamps onto outgoing model records.
package health

import (
	"sync"
	"time"

	"github.com/alpaca-network/gatewayz-relay/gateways"
)

// Thresholds configure the state machine. Zero values get defaults:
// 5 failures to open, 3 successes to recover, 5m recovery timeout.
type Thresholds struct {
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
}

func (t Thresholds) withDefaults() Thresholds {
	if t.FailureThreshold <= 0 {
		t.FailureThreshold = 5
	}
	if t.SuccessThreshold <= 0 {
		t.SuccessThreshold = 3
	}
	if t.RecoveryTimeout <= 0 {
		t.RecoveryTimeout = 5 * time.Minute
	}
	return t
}

type gatewayState struct {
	status       gateways.HealthStatus
	failureCount int
	successCount int
	downUntil    time.Time

	// Rolling latency average over observed calls.
	totalLatency time.Duration
	samples      int
}

// Tracker records outcomes for all gateways. Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	thresholds Thresholds
	state      map[string]*gatewayState
}

// NewTracker creates a Tracker with the given thresholds.
func NewTracker(t Thresholds) *Tracker {
	return &Tracker{
		thresholds: t.withDefaults(),
		state:      make(map[string]*gatewayState),
	}
}

func (t *Tracker) get(gateway string) *gatewayState {
	st, ok := t.state[gateway]
	if !ok {
		st = &gatewayState{status: gateways.HealthUnknown}
		t.state[gateway] = st
	}
	return st
}

// RecordSuccess notes a successful call and its latency.
func (t *Tracker) RecordSuccess(gateway string, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.get(gateway)
	st.totalLatency += latency
	st.samples++

	switch t.resolve(st) {
	case gateways.HealthDegraded:
		st.successCount++
		if st.successCount >= t.thresholds.SuccessThreshold {
			st.status = gateways.HealthHealthy
			st.failureCount = 0
			st.successCount = 0
		}
	default:
		st.status = gateways.HealthHealthy
		st.failureCount = 0
	}
}

// RecordFailure notes a failed call.
func (t *Tracker) RecordFailure(gateway string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.get(gateway)
	switch t.resolve(st) {
	case gateways.HealthDegraded:
		st.status = gateways.HealthDown
		st.downUntil = time.Now().Add(t.thresholds.RecoveryTimeout)
		st.successCount = 0
	case gateways.HealthDown:
		st.downUntil = time.Now().Add(t.thresholds.RecoveryTimeout)
	default:
		st.failureCount++
		if st.failureCount >= t.thresholds.FailureThreshold {
			st.status = gateways.HealthDown
			st.downUntil = time.Now().Add(t.thresholds.RecoveryTimeout)
		}
	}
}

// resolve must be called with t.mu held; it handles the timed down→degraded
// transition.
func (t *Tracker) resolve(st *gatewayState) gateways.HealthStatus {
	if st.status == gateways.HealthDown && time.Now().After(st.downUntil) {
		st.status = gateways.HealthDegraded
		st.successCount = 0
	}
	return st.status
}

// Status returns the current health of a gateway.
func (t *Tracker) Status(gateway string) gateways.HealthStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.state[gateway]
	if !ok {
		return gateways.HealthUnknown
	}
	return t.resolve(st)
}

// AvgResponseMs returns the rolling average latency for a gateway in
// milliseconds, or nil before any sample.
func (t *Tracker) AvgResponseMs(gateway string) *int {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.state[gateway]
	if !ok || st.samples == 0 {
		return nil
	}
	avg := int(st.totalLatency.Milliseconds()) / st.samples
	return &avg
}
