package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alpaca-network/gatewayz-relay/catalog"
	"github.com/alpaca-network/gatewayz-relay/gateways"
	"github.com/alpaca-network/gatewayz-relay/internal/cache"
	"github.com/alpaca-network/gatewayz-relay/internal/health"
	"github.com/alpaca-network/gatewayz-relay/internal/logging"
	"github.com/alpaca-network/gatewayz-relay/internal/metrics"
	"github.com/alpaca-network/gatewayz-relay/internal/retry"
)

// ErrAllGatewaysFailed is returned when no gateway produced any records.
// Partial failure is not an error: it shrinks the merged set silently.
var ErrAllGatewaysFailed = errors.New("all gateways failed or timed out")

// GatewayOutcome is the per-gateway observation of one aggregation call,
// exposed for monitoring rather than thrown.
type GatewayOutcome struct {
	Gateway   string        `json:"gateway"`
	Models    int           `json:"models"`
	FromCache bool          `json:"from_cache"`
	Duration  time.Duration `json:"-"`
	Err       error         `json:"-"`
}

// AggregateResult is the merged catalog plus the fan-out bookkeeping.
type AggregateResult struct {
	Models    []catalog.UnifiedModel
	Outcomes  []GatewayOutcome
	Succeeded int
	Failed    int
}

// Aggregator fans one catalog fetch out to every registered gateway,
// collects whatever arrives within the per-gateway budget, and merges the
// records into unified models. All state it builds is scoped to one
// Aggregate call; the Aggregator itself is safe for concurrent use.
type Aggregator struct {
	registry *gateways.Registry
	cache    cache.Store
	health   *health.Tracker
	budget   time.Duration
	policy   retry.Policy
}

// AggregatorOptions carries the injected collaborators. Cache and Health
// default to a fresh in-memory cache and tracker when nil.
type AggregatorOptions struct {
	Budget time.Duration
	Policy retry.Policy
	Cache  cache.Store
	Health *health.Tracker
}

// NewAggregator creates an Aggregator over the given registry.
func NewAggregator(reg *gateways.Registry, opts AggregatorOptions) *Aggregator {
	if opts.Budget <= 0 {
		opts.Budget = 30 * time.Second
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory(64, 5*time.Minute)
	}
	if opts.Health == nil {
		opts.Health = health.NewTracker(health.Thresholds{})
	}
	return &Aggregator{
		registry: reg,
		cache:    opts.Cache,
		health:   opts.Health,
		budget:   opts.Budget,
		policy:   opts.Policy,
	}
}

type fetchResult struct {
	outcome GatewayOutcome
	records []gateways.ModelRecord
}

// Aggregate fetches every gateway's catalog concurrently and returns the
// best-effort merge. Gateways that fail or exceed the budget are excluded
// from the merge and reported in Outcomes; ErrAllGatewaysFailed is returned
// only when every gateway failed.
func (a *Aggregator) Aggregate(ctx context.Context) (*AggregateResult, error) {
	clients := a.registry.All()
	if len(clients) == 0 {
		return nil, errors.New("no gateways registered")
	}

	results := make(chan fetchResult, len(clients))
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c gateways.Client) {
			defer wg.Done()
			results <- a.fetchOne(ctx, c)
		}(c)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Records accumulate in the order gateways actually complete, which
	// is the order all first-seen tie-breaks downstream refer to.
	res := &AggregateResult{}
	var records []gateways.ModelRecord
	for r := range results {
		res.Outcomes = append(res.Outcomes, r.outcome)
		if r.outcome.Err != nil {
			res.Failed++
			continue
		}
		res.Succeeded++
		records = append(records, r.records...)
	}

	if res.Succeeded == 0 {
		return nil, ErrAllGatewaysFailed
	}

	res.Models = catalog.Merge(records)
	metrics.CatalogModels.Set(float64(len(res.Models)))
	logging.FromContext(ctx).Info("catalog aggregated",
		"gateways_ok", res.Succeeded,
		"gateways_failed", res.Failed,
		"models", len(res.Models))
	return res, nil
}

// fetchOne resolves one gateway's records: cache first, then a live fetch
// under the per-gateway budget with the shared retry controller. The budget
// context aborts the in-flight connection when it expires; the abandoned
// gateway is reported as failed-but-non-fatal.
func (a *Aggregator) fetchOne(parent context.Context, c gateways.Client) fetchResult {
	name := c.Name()

	if recs, ok := a.cache.Get(name); ok {
		metrics.GatewayFetches.WithLabelValues(name, "cache_hit").Inc()
		return fetchResult{
			outcome: GatewayOutcome{Gateway: name, Models: len(recs), FromCache: true},
			records: a.stamp(name, recs),
		}
	}

	ctx, cancel := context.WithTimeout(parent, a.budget)
	defer cancel()

	started := time.Now()
	st := &retry.State{}
	for {
		attemptStart := time.Now()
		recs, err := c.FetchModels(ctx)
		if err == nil {
			elapsed := time.Since(attemptStart)
			a.health.RecordSuccess(name, elapsed)
			a.cache.Set(name, recs)
			metrics.GatewayFetches.WithLabelValues(name, "success").Inc()
			metrics.GatewayFetchDuration.WithLabelValues(name).Observe(elapsed.Seconds())
			return fetchResult{
				outcome: GatewayOutcome{Gateway: name, Models: len(recs), Duration: time.Since(started)},
				records: a.stamp(name, recs),
			}
		}

		if gateways.IsCancellation(err) {
			metrics.GatewayFetches.WithLabelValues(name, "timeout").Inc()
			logging.FromContext(parent).Warn("gateway fetch abandoned", "gateway", name, "error", err)
			return fetchResult{outcome: GatewayOutcome{Gateway: name, Err: err, Duration: time.Since(started)}}
		}

		a.health.RecordFailure(name)
		d := a.policy.Next(err, st)
		if !d.Retry {
			metrics.GatewayFetches.WithLabelValues(name, "error").Inc()
			logging.FromContext(parent).Warn("gateway fetch failed", "gateway", name, "error", err)
			return fetchResult{outcome: GatewayOutcome{Gateway: name, Err: err, Duration: time.Since(started)}}
		}
		metrics.Retries.WithLabelValues(name, st.LastClass.String()).Inc()
		if werr := retry.Wait(ctx, d.Delay); werr != nil {
			metrics.GatewayFetches.WithLabelValues(name, "timeout").Inc()
			return fetchResult{outcome: GatewayOutcome{Gateway: name, Err: err, Duration: time.Since(started)}}
		}
	}
}

// stamp copies records with the tracker's current health and latency view
// of the source gateway. The cached originals stay untouched.
func (a *Aggregator) stamp(name string, recs []gateways.ModelRecord) []gateways.ModelRecord {
	status := a.health.Status(name)
	avg := a.health.AvgResponseMs(name)
	out := make([]gateways.ModelRecord, len(recs))
	for i, r := range recs {
		r.Health = status
		if r.AvgResponseMs == nil {
			r.AvgResponseMs = avg
		}
		out[i] = r
	}
	return out
}
