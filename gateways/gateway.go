// Package gateways defines the Client interface and shared data types used
// across all upstream inference-gateway implementations.
//
// A Client wraps one upstream provider API (OpenRouter, Portkey, Groq, …).
// It can enumerate the models the gateway advertises, normalised into the
// shared ModelRecord shape, and open a raw streaming completion call.
//
// Core types: ModelRecord, Request, Message, Error.
package gateways

import (
	"context"
	"errors"
	"io"
)

// Message role constants shared by all gateway request bodies.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	// SSEDone is the sentinel value that marks the end of a server-sent
	// event stream.
	SSEDone = "[DONE]"
)

// HealthStatus describes the last observed health of a gateway.
type HealthStatus string

// Health status values stamped onto ModelRecord by the aggregator.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
	HealthUnknown  HealthStatus = "unknown"
)

// Client is implemented by every upstream gateway integration.
//
// Implementations are stateless and safe for concurrent use; per-request
// state (deadlines, retry bookkeeping, decoder buffers) lives with the
// caller, never inside the client.
type Client interface {
	// Name returns the gateway identifier, e.g. "openrouter".
	Name() string

	// FetchModels returns the gateway's current model catalog normalised
	// into ModelRecord. Implementations apply their own per-call timeout
	// unless ctx carries an earlier deadline.
	FetchModels(ctx context.Context) ([]ModelRecord, error)

	// Complete opens one streaming chat completion call and returns the
	// raw response body. The caller owns the stream and must close it.
	// HTTP-level failures are returned as *Error with a classification.
	Complete(ctx context.Context, req Request) (io.ReadCloser, error)
}

// ModelRecord is one model as advertised by one gateway. Records are built
// fresh on every catalog fetch and discarded after merging; they are never
// mutated in place.
type ModelRecord struct {
	// ID is the provider-qualified identifier, e.g. "openai/gpt-4".
	// Not unique across gateways.
	ID string `json:"id"`
	// Gateway is the upstream that reported this record.
	Gateway string `json:"gateway"`
	// PromptPrice and CompletionPrice are USD per 1M tokens. nil means
	// the gateway does not report pricing — it does NOT mean free.
	PromptPrice     *float64 `json:"prompt_price"`
	CompletionPrice *float64 `json:"completion_price"`
	// ContextLength is the advertised context window, when reported.
	ContextLength *int `json:"context_length"`
	// Health is the aggregator's view of the source gateway at fetch time.
	Health HealthStatus `json:"health_status"`
	// AvgResponseMs is the gateway's rolling average response time.
	AvgResponseMs *int `json:"average_response_time_ms"`
}

// Message is a single turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request in the OpenAI-compatible shape every
// configured gateway accepts.
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
	User        string   `json:"user,omitempty"`
}

// Validate returns an error if the request is missing required fields or
// contains out-of-range parameter values.
func (r Request) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return errors.New("top_p must be between 0 and 1")
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	return nil
}

// Float returns a *float64 for literal pricing values in normalisers.
func Float(v float64) *float64 { return &v }

// Int returns an *int for literal values in normalisers.
func Int(v int) *int { return &v }
