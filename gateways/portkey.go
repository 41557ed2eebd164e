package gateways

import (
	"context"
	"io"
)

// PortkeyClient implements the Client interface for the Portkey gateway.
type PortkeyClient struct {
	Base
}

// NewPortkey creates a new Portkey client. Pass "" for the default base URL.
func NewPortkey(apiKey, baseURL string) *PortkeyClient {
	if baseURL == "" {
		baseURL = "https://api.portkey.ai"
	}
	return &PortkeyClient{Base: NewBase("portkey", apiKey, baseURL)}
}

// portkeyModel mirrors one entry of the Portkey GET /v1/models response.
// Portkey does not expose pricing on this endpoint.
type portkeyModel struct {
	ID            string `json:"id"`
	ContextLength int    `json:"context_length"`
}

type portkeyModelList struct {
	Data []portkeyModel `json:"data"`
}

// FetchModels returns Portkey's catalog normalised into ModelRecord.
// Pricing is left nil — Portkey's model listing carries none.
func (c *PortkeyClient) FetchModels(ctx context.Context) ([]ModelRecord, error) {
	var list portkeyModelList
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

// Complete opens a streaming chat completion call against Portkey.
func (c *PortkeyClient) Complete(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	return c.openStream(ctx, "/v1/chat/completions", req)
}
