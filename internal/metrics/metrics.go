// Package metrics registers the Prometheus metrics used by the relay.
// Import this package (via blank import) from the server entry point to
// register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Aggregation and streaming metrics.
var (
	// GatewayFetches counts catalog fetches labelled by gateway and
	// outcome ("success", "error", "timeout", "cache_hit").
	GatewayFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_gateway_fetches_total",
			Help: "Total catalog fetches per gateway and outcome.",
		},
		[]string{"gateway", "outcome"},
	)

	// GatewayFetchDuration observes per-gateway catalog fetch latency.
	GatewayFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_gateway_fetch_duration_seconds",
			Help:    "Catalog fetch duration per gateway in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"gateway"},
	)

	// CatalogModels tracks the size of the last merged catalog.
	CatalogModels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_catalog_models",
			Help: "Number of unified models in the last merged catalog.",
		},
	)

	// StreamTTFT observes time-to-first-token for completion streams.
	StreamTTFT = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_stream_ttft_seconds",
			Help:    "Time from dispatch to first streamed content event.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"gateway"},
	)

	// CompletionsTotal counts completion requests labelled by gateway,
	// and outcome ("completed", "failed", "cancelled").
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_completions_total",
			Help: "Total completion requests by gateway and outcome.",
		},
		[]string{"gateway", "outcome"},
	)

	// Retries counts retry attempts labelled by gateway and error class
	// ("transient", "rate_limited").
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retries_total",
			Help: "Total retry attempts by gateway and error class.",
		},
		[]string{"gateway", "class"},
	)

	// MalformedFrames counts stream frames skipped as undecodable.
	MalformedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_malformed_frames_total",
			Help: "Stream frames skipped because they could not be decoded.",
		},
		[]string{"gateway"},
	)
)
