package gateways

import (
	"context"
	"io"
)

// FeatherlessClient implements the Client interface for Featherless.
//
// Featherless returns its entire catalog (several thousand models) in a
// single response and ignores pagination parameters, so one fetch is one
// request.
type FeatherlessClient struct {
	Base
}

// NewFeatherless creates a new Featherless client. Pass "" for the default
// base URL.
func NewFeatherless(apiKey, baseURL string) *FeatherlessClient {
	if baseURL == "" {
		baseURL = "https://api.featherless.ai"
	}
	return &FeatherlessClient{Base: NewBase("featherless", apiKey, baseURL)}
}

// featherlessModel mirrors one entry of the Featherless GET /v1/models
// response.
type featherlessModel struct {
	ID               string `json:"id"`
	MaxContextLength int    `json:"max_completion_tokens"`
	ContextLength    int    `json:"context_length"`
}

type featherlessModelList struct {
	Data []featherlessModel `json:"data"`
}

// FetchModels returns Featherless's catalog normalised into ModelRecord.
func (c *FeatherlessClient) FetchModels(ctx context.Context) ([]ModelRecord, error) {
	var list featherlessModelList
	if err := c.getJSON(ctx, "/v1/models", &list); err != nil {
		return nil, err
	}

	records := make([]ModelRecord, 0, len(list.Data))
	for _, m := range list.Data {
		rec := ModelRecord{
			ID:      m.ID,
			Gateway: c.Name(),
			Health:  HealthUnknown,
		}
		if m.ContextLength > 0 {
			rec.ContextLength = Int(m.ContextLength)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Complete opens a streaming chat completion call against Featherless.
func (c *FeatherlessClient) Complete(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	return c.openStream(ctx, "/v1/chat/completions", req)
}
