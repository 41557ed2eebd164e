// Package relay wires upstream gateway clients into the two core surfaces:
// the catalog Aggregator (concurrent fan-out + dedup merge) and the
// CompletionProxy (retryable streaming completions).
package relay

import (
	"time"

	"github.com/alpaca-network/gatewayz-relay/internal/retry"
)

// Config is the top-level relay configuration.
type Config struct {
	// Gateways lists the upstream gateways to register, in priority order.
	Gateways []GatewayConfig `json:"gateways" yaml:"gateways"`
	// Retry tunes the shared retry controller.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// Aggregation tunes catalog fan-out.
	Aggregation AggregationConfig `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	// Completion tunes the streaming proxy.
	Completion CompletionConfig `json:"completion,omitempty" yaml:"completion,omitempty"`
	// History configures the usage-recording store. Empty driver disables
	// recording.
	History HistoryConfig `json:"history,omitempty" yaml:"history,omitempty"`
}

// GatewayConfig configures one upstream gateway client.
type GatewayConfig struct {
	// Name selects the client implementation: openrouter, portkey,
	// featherless, chutes, groq, openai, vertex.
	Name string `json:"name" yaml:"name"`
	// APIKey may reference an environment variable as ${VAR}; LoadConfig
	// expands it.
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Vertex only.
	Project string `json:"project,omitempty" yaml:"project,omitempty"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
}

// RetryConfig mirrors retry.Policy in config-file-friendly units.
// Zero values fall back to the controller defaults.
type RetryConfig struct {
	BaseDelayMs int     `json:"base_delay_ms,omitempty" yaml:"base_delay_ms,omitempty"`
	Multiplier  float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	MaxDelayMs  int     `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty"`
	CeilingMs   int     `json:"ceiling_ms,omitempty" yaml:"ceiling_ms,omitempty"`
	MaxAttempts int     `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
}

// Policy converts the config into a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		BaseDelay:   time.Duration(r.BaseDelayMs) * time.Millisecond,
		Multiplier:  r.Multiplier,
		MaxDelay:    time.Duration(r.MaxDelayMs) * time.Millisecond,
		Ceiling:     time.Duration(r.CeilingMs) * time.Millisecond,
		MaxAttempts: r.MaxAttempts,
	}
}

// AggregationConfig tunes the catalog fan-out.
type AggregationConfig struct {
	// PerGatewayBudgetMs bounds how long a single gateway may take before
	// it is abandoned for this aggregation. Default 30000.
	PerGatewayBudgetMs int `json:"per_gateway_budget_ms,omitempty" yaml:"per_gateway_budget_ms,omitempty"`
	// CacheTTLSeconds is how long fetched records stay fresh. Default 300.
	CacheTTLSeconds int `json:"cache_ttl_seconds,omitempty" yaml:"cache_ttl_seconds,omitempty"`
	// CacheCapacity bounds the number of cached gateways. Default 64.
	CacheCapacity int `json:"cache_capacity,omitempty" yaml:"cache_capacity,omitempty"`
}

// Budget returns the per-gateway time budget.
func (a AggregationConfig) Budget() time.Duration {
	if a.PerGatewayBudgetMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.PerGatewayBudgetMs) * time.Millisecond
}

// CacheTTL returns the catalog cache TTL.
func (a AggregationConfig) CacheTTL() time.Duration {
	if a.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

// CompletionConfig tunes the streaming proxy.
type CompletionConfig struct {
	// FirstByteTimeoutMs bounds the wait for the first streamed chunk of
	// one attempt. Default 15000.
	FirstByteTimeoutMs int `json:"first_byte_timeout_ms,omitempty" yaml:"first_byte_timeout_ms,omitempty"`
	// DefaultGateway handles model ids with no gateway prefix. Defaults
	// to the first configured gateway.
	DefaultGateway string `json:"default_gateway,omitempty" yaml:"default_gateway,omitempty"`
}

// FirstByteTimeout returns the per-attempt first-byte budget.
func (c CompletionConfig) FirstByteTimeout() time.Duration {
	if c.FirstByteTimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.FirstByteTimeoutMs) * time.Millisecond
}

// HistoryConfig configures the usage store.
type HistoryConfig struct {
	// Driver is "sqlite", "postgres", or "" for disabled.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}
