package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpaca-network/gatewayz-relay/gateways"
)

func transient() error {
	return &gateways.Error{Gateway: "g", Class: gateways.ClassTransient, Detail: "reset"}
}

func TestNextExponentialGrowth(t *testing.T) {
	p := DefaultPolicy()
	st := &State{}

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for i, w := range want {
		d := p.Next(transient(), st)
		if !d.Retry {
			t.Fatalf("attempt %d: expected retry", i)
		}
		if d.Delay != w {
			t.Errorf("attempt %d: delay = %v, want %v", i, d.Delay, w)
		}
		if st.CumulativeWait > p.Ceiling {
			t.Fatalf("attempt %d: cumulative wait %v exceeds ceiling %v", i, st.CumulativeWait, p.Ceiling)
		}
	}
	// Attempts exhausted.
	if d := p.Next(transient(), st); d.Retry {
		t.Errorf("expected no retry after %d attempts", p.MaxAttempts)
	}
}

func TestNextCeilingRefusal(t *testing.T) {
	// Ceiling of 3s admits 1s + 2s, then refuses the 4s wait even though
	// attempts remain.
	p := Policy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 10 * time.Second,
		Ceiling: 3 * time.Second, MaxAttempts: 10}
	st := &State{}

	for i := 0; i < 2; i++ {
		if d := p.Next(transient(), st); !d.Retry {
			t.Fatalf("attempt %d: expected retry", i)
		}
	}
	d := p.Next(transient(), st)
	if d.Retry {
		t.Errorf("expected ceiling to refuse the third retry, got delay %v", d.Delay)
	}
	if st.CumulativeWait != 3*time.Second {
		t.Errorf("cumulative wait = %v, want 3s", st.CumulativeWait)
	}
}

func TestNextRetryAfterHint(t *testing.T) {
	p := DefaultPolicy()
	st := &State{}

	err := &gateways.Error{
		Gateway:    "g",
		Status:     429,
		Class:      gateways.ClassRateLimited,
		RetryAfter: 5 * time.Second,
	}
	d := p.Next(err, st)
	if !d.Retry {
		t.Fatal("expected retry on 429")
	}
	if d.Delay != 5*time.Second {
		t.Errorf("delay = %v, want the 5s Retry-After hint over the 1s base", d.Delay)
	}
	if st.LastClass != gateways.ClassRateLimited {
		t.Errorf("class = %v", st.LastClass)
	}
}

func TestNextHintSubjectToCeiling(t *testing.T) {
	p := Policy{Ceiling: 4 * time.Second}
	st := &State{}
	err := &gateways.Error{Class: gateways.ClassRateLimited, RetryAfter: 10 * time.Second}
	if d := p.Next(err, st); d.Retry {
		t.Errorf("a hint past the ceiling must not be honoured, got delay %v", d.Delay)
	}
}

func TestNextFatalNeverRetries(t *testing.T) {
	p := DefaultPolicy()
	st := &State{}
	err := &gateways.Error{Gateway: "g", Status: 400, Class: gateways.ClassFatal}
	if d := p.Next(err, st); d.Retry {
		t.Error("fatal errors must not retry")
	}
	if st.Attempt != 0 {
		t.Errorf("attempt advanced on a fatal error: %d", st.Attempt)
	}
}

func TestNextCancellationNeverRetries(t *testing.T) {
	p := DefaultPolicy()
	for _, err := range []error{context.Canceled, context.DeadlineExceeded} {
		if d := p.Next(err, &State{}); d.Retry {
			t.Errorf("%v must not retry", err)
		}
	}
}

func TestNextUntypedErrorIsTransient(t *testing.T) {
	p := DefaultPolicy()
	st := &State{}
	if d := p.Next(errors.New("connection reset by peer"), st); !d.Retry {
		t.Error("untyped errors classify as transient and retry")
	}
	if st.LastClass != gateways.ClassTransient {
		t.Errorf("class = %v", st.LastClass)
	}
}

func TestZeroPolicyUsesDefaults(t *testing.T) {
	st := &State{}
	d := Policy{}.Next(transient(), st)
	if !d.Retry || d.Delay != time.Second {
		t.Errorf("zero policy first delay = %v retry=%v, want 1s retry", d.Delay, d.Retry)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestWaitZeroDelay(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait(0) = %v", err)
	}
}
