package gateways

import (
	"context"
	"io"
)

// GroqClient implements the Client interface for Groq.
type GroqClient struct {
	Base
}

// NewGroq creates a new Groq client. Pass "" for the default base URL.
func NewGroq(apiKey, baseURL string) *GroqClient {
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai"
	}
	return &GroqClient{Base: NewBase("groq", apiKey, baseURL)}
}

// groqModel mirrors one entry of the Groq GET /v1/models response. Groq
// reports the context window but no pricing.
type groqModel struct {
	ID            string `json:"id"`
	ContextWindow int    `json:"context_window"`
	Active        bool   `json:"active"`
}

type groqModelList struct {
	Data []groqModel `json:"data"`
}

// FetchModels returns Groq's catalog normalised into ModelRecord. Inactive
// models are excluded.
func (c *GroqClient) FetchModels(ctx context.Context) ([]ModelRecord, error) {
	var list groqModelList
	if err := c.getJSON(ctx, "/v1/models", &list); err != nil {
		return nil, err
	}

	records := make([]ModelRecord, 0, len(list.Data))
	for _, m := range list.Data {
		if !m.Active {
			continue
		}
		rec := ModelRecord{
			ID:      m.ID,
			Gateway: c.Name(),
			Health:  HealthUnknown,
		}
		if m.ContextWindow > 0 {
			rec.ContextLength = Int(m.ContextWindow)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Complete opens a streaming chat completion call against Groq.
func (c *GroqClient) Complete(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	return c.openStream(ctx, "/v1/chat/completions", req)
}
