package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alpaca-network/gatewayz-relay/gateways"
	"github.com/alpaca-network/gatewayz-relay/internal/history"
	"github.com/alpaca-network/gatewayz-relay/internal/logging"
	"github.com/alpaca-network/gatewayz-relay/internal/metrics"
	"github.com/alpaca-network/gatewayz-relay/internal/retry"
	"github.com/alpaca-network/gatewayz-relay/internal/stream"
)

// ErrNoGateway is returned when a completion request names a model whose
// gateway prefix is not registered and no default gateway is configured.
var ErrNoGateway = errors.New("no gateway available for model")

// CompletionProxy forwards one chat completion request to a single upstream
// gateway and re-emits the upstream stream as normalised events.
//
// Retries happen only while dispatching: once any event has been delivered
// to the caller, a subsequent failure is surfaced as a terminal error event
// and never silently retried — retrying after partial delivery would
// duplicate content.
type CompletionProxy struct {
	registry         *gateways.Registry
	policy           retry.Policy
	firstByteTimeout time.Duration
	defaultGateway   string
	recorder         history.Recorder
}

// ProxyOptions carries the proxy collaborators. Recorder defaults to
// history.Discard; DefaultGateway to the first registered gateway.
type ProxyOptions struct {
	Policy           retry.Policy
	FirstByteTimeout time.Duration
	DefaultGateway   string
	Recorder         history.Recorder
}

// NewCompletionProxy creates a CompletionProxy over the given registry.
func NewCompletionProxy(reg *gateways.Registry, opts ProxyOptions) *CompletionProxy {
	if opts.FirstByteTimeout <= 0 {
		opts.FirstByteTimeout = 15 * time.Second
	}
	if opts.Recorder == nil {
		opts.Recorder = history.Discard{}
	}
	if opts.DefaultGateway == "" {
		if names := reg.List(); len(names) > 0 {
			opts.DefaultGateway = names[0]
		}
	}
	return &CompletionProxy{
		registry:         reg,
		policy:           opts.Policy,
		firstByteTimeout: opts.FirstByteTimeout,
		defaultGateway:   opts.DefaultGateway,
		recorder:         opts.Recorder,
	}
}

// resolve maps a model id to its gateway client. A "gateway/rest" prefix
// naming a registered gateway selects it explicitly (the rest becomes the
// upstream model id); anything else goes to the default gateway verbatim.
func (p *CompletionProxy) resolve(model string) (gateways.Client, string, error) {
	if prefix, rest, ok := strings.Cut(model, "/"); ok {
		if c, found := p.registry.Get(prefix); found {
			return c, rest, nil
		}
	}
	if c, ok := p.registry.Get(p.defaultGateway); ok {
		return c, model, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNoGateway, model)
}

// Complete dispatches req and returns the event stream. The returned
// channel delivers events in decode order and ends with exactly one
// terminal event (done or error); it is closed without a terminal event
// only when ctx is cancelled. Failures before the first upstream event are
// returned directly instead of a channel.
func (p *CompletionProxy) Complete(ctx context.Context, req gateways.Request) (<-chan stream.Event, error) {
	client, model, err := p.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	upstreamReq := req
	upstreamReq.Model = model

	started := time.Now()
	st := &retry.State{}
	log := logging.FromContext(ctx).With("gateway", client.Name(), "model", model)

	for {
		body, dec, pending, err := p.dispatch(ctx, client, upstreamReq)
		if err == nil {
			metrics.StreamTTFT.WithLabelValues(client.Name()).Observe(time.Since(started).Seconds())
			out := make(chan stream.Event)
			go p.pump(ctx, client.Name(), req, body, dec, pending, out, started)
			return out, nil
		}

		if gateways.IsCancellation(err) {
			metrics.CompletionsTotal.WithLabelValues(client.Name(), "cancelled").Inc()
			return nil, err
		}
		if errors.Is(err, stream.ErrEmptyStream) {
			// Fatal by design: the upstream accepted the call, so partial
			// processing may already have happened there.
			metrics.CompletionsTotal.WithLabelValues(client.Name(), "failed").Inc()
			return nil, err
		}

		d := p.policy.Next(err, st)
		if !d.Retry {
			metrics.CompletionsTotal.WithLabelValues(client.Name(), "failed").Inc()
			log.Warn("completion dispatch failed", "attempt", st.Attempt, "error", err)
			return nil, err
		}
		metrics.Retries.WithLabelValues(client.Name(), st.LastClass.String()).Inc()
		log.Info("retrying completion dispatch",
			"attempt", st.Attempt, "delay", d.Delay, "class", st.LastClass.String())
		if werr := retry.Wait(ctx, d.Delay); werr != nil {
			return nil, werr
		}
	}
}

// dispatch performs one upstream attempt: open the call and read until the
// decoder produces the first event. The first-byte timer covers the whole
// attempt and is disarmed once an event exists. On success the caller owns
// body and the events decoded so far.
func (p *CompletionProxy) dispatch(ctx context.Context, client gateways.Client, req gateways.Request) (io.ReadCloser, *stream.Decoder, []stream.Event, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	var timedOut atomic.Bool
	timer := time.AfterFunc(p.firstByteTimeout, func() {
		timedOut.Store(true)
		cancel()
	})

	fail := func(err error) (io.ReadCloser, *stream.Decoder, []stream.Event, error) {
		timer.Stop()
		cancel()
		if timedOut.Load() && ctx.Err() == nil {
			return nil, nil, nil, &gateways.Error{
				Gateway: client.Name(),
				Class:   gateways.ClassTransient,
				Detail:  fmt.Sprintf("no first byte within %s", p.firstByteTimeout),
			}
		}
		return nil, nil, nil, err
	}

	body, err := client.Complete(attemptCtx, req)
	if err != nil {
		return fail(err)
	}

	dec := stream.NewDecoder(logging.FromContext(ctx))
	buf := make([]byte, 4096)
	for {
		n, rerr := body.Read(buf)
		events := dec.Feed(buf[:n])
		if len(events) > 0 {
			timer.Stop()
			// The attempt context stays alive: body reads run under it
			// until the pump finishes.
			switch events[0].Kind {
			case stream.KindError:
				_ = body.Close()
				cancel()
				return nil, nil, nil, events[0].Err
			case stream.KindDone:
				_ = body.Close()
				cancel()
				return nil, nil, nil, stream.ErrEmptyStream
			}
			return body, dec, events, nil
		}
		if rerr != nil {
			_ = body.Close()
			if rerr == io.EOF {
				timer.Stop()
				cancel()
				// No events at all before EOF: empty stream, fatal —
				// partial content may already be implied upstream.
				_, ferr := dec.Finish()
				if ferr == nil {
					ferr = stream.ErrEmptyStream
				}
				return nil, nil, nil, ferr
			}
			return fail(gateways.TransportError(client.Name(), rerr))
		}
	}
}

// pump forwards decoded events to out until the stream terminates. It owns
// body and closes out exactly once.
func (p *CompletionProxy) pump(ctx context.Context, gateway string, req gateways.Request, body io.ReadCloser, dec *stream.Decoder, pending []stream.Event, out chan<- stream.Event, started time.Time) {
	defer close(out)
	defer func() { _ = body.Close() }()

	var (
		usage      stream.Usage
		contentLen int
	)

	// emit delivers one event, honouring caller cancellation.
	emit := func(ev stream.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finish := func(outcome string) {
		metrics.CompletionsTotal.WithLabelValues(gateway, outcome).Inc()
		if n := dec.MalformedFrames(); n > 0 {
			metrics.MalformedFrames.WithLabelValues(gateway).Add(float64(n))
		}
		if outcome == "completed" {
			p.record(req, gateway, usage, contentLen, time.Since(started))
		}
	}

	deliver := func(events []stream.Event) (terminal bool, outcome string) {
		for _, ev := range events {
			switch ev.Kind {
			case stream.KindUsage:
				usage = ev.Usage
			case stream.KindContent:
				contentLen += len(ev.Text)
			}
			if !emit(ev) {
				return true, "cancelled"
			}
			switch ev.Kind {
			case stream.KindDone:
				return true, "completed"
			case stream.KindError:
				return true, "failed"
			}
		}
		return false, ""
	}

	if terminal, outcome := deliver(pending); terminal {
		finish(outcome)
		return
	}

	buf := make([]byte, 4096)
	for {
		n, rerr := body.Read(buf)
		if terminal, outcome := deliver(dec.Feed(buf[:n])); terminal {
			finish(outcome)
			return
		}
		if rerr == nil {
			continue
		}

		if rerr == io.EOF {
			events, ferr := dec.Finish()
			if ferr != nil {
				emit(stream.Event{Kind: stream.KindError, Err: ferr})
				finish("failed")
				return
			}
			if terminal, outcome := deliver(events); terminal {
				finish(outcome)
				return
			}
			// Finish always yields a terminal event when the decoder had
			// not already seen one.
			finish("completed")
			return
		}

		if gateways.IsCancellation(rerr) || ctx.Err() != nil {
			finish("cancelled")
			return
		}

		// Mid-stream failure after delivery: terminal, surfaced in-band,
		// never retried.
		emit(stream.Event{Kind: stream.KindError, Err: gateways.TransportError(gateway, rerr)})
		finish("failed")
		return
	}
}

// record reports usage to the history collaborator. The recorder is
// non-blocking by contract, so stream completion is never delayed.
func (p *CompletionProxy) record(req gateways.Request, gateway string, usage stream.Usage, contentLen int, latency time.Duration) {
	if usage.TotalTokens == 0 {
		// Upstream sent no usage frame; estimate at ~4 chars per token,
		// mirroring the catalog-side accounting.
		promptChars := 0
		for _, m := range req.Messages {
			promptChars += len(m.Content)
		}
		usage.PromptTokens = max(1, promptChars/4)
		usage.CompletionTokens = max(1, contentLen/4)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	p.recorder.Record(history.Usage{
		Model:            req.Model,
		Gateway:          gateway,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		LatencyMs:        latency.Milliseconds(),
	})
}

// Completion is the non-streaming response assembled from a drained event
// stream.
type Completion struct {
	Model     string       `json:"model"`
	Gateway   string       `json:"gateway"`
	Content   string       `json:"content"`
	Reasoning string       `json:"reasoning,omitempty"`
	Usage     stream.Usage `json:"usage"`
}

// CompleteBlocking runs a completion and accumulates the whole stream into
// a single response for stream=false callers.
func (p *CompletionProxy) CompleteBlocking(ctx context.Context, req gateways.Request) (*Completion, error) {
	client, _, err := p.resolve(req.Model)
	if err != nil {
		return nil, err
	}

	events, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Completion{Model: req.Model, Gateway: client.Name()}
	var content, reasoning strings.Builder
	for ev := range events {
		switch ev.Kind {
		case stream.KindContent:
			content.WriteString(ev.Text)
		case stream.KindReasoning:
			reasoning.WriteString(ev.Text)
		case stream.KindUsage:
			resp.Usage = ev.Usage
		case stream.KindError:
			// A blocking caller cannot use a partial body; the error wins.
			return nil, ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp.Content = content.String()
	resp.Reasoning = reasoning.String()
	return resp, nil
}
