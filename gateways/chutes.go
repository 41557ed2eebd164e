package gateways

import (
	"context"
	"io"
)

// ChutesClient implements the Client interface for Chutes.
type ChutesClient struct {
	Base
}

// NewChutes creates a new Chutes client. Pass "" for the default base URL.
func NewChutes(apiKey, baseURL string) *ChutesClient {
	if baseURL == "" {
		baseURL = "https://llm.chutes.ai"
	}
	return &ChutesClient{Base: NewBase("chutes", apiKey, baseURL)}
}

// chutesModel mirrors one entry of the Chutes GET /v1/models response.
// Prices are USD per 1M tokens.
type chutesModel struct {
	ID            string `json:"id"`
	ContextLength int    `json:"context_length"`
	Pricing       struct {
		Prompt     *float64 `json:"prompt"`
		Completion *float64 `json:"completion"`
	} `json:"pricing"`
}

type chutesModelList struct {
	Data []chutesModel `json:"data"`
}

// FetchModels returns the Chutes catalog normalised into ModelRecord.
func (c *ChutesClient) FetchModels(ctx context.Context) ([]ModelRecord, error) {
	var list chutesModelList
	if err := c.getJSON(ctx, "/v1/models", &list); err != nil {
		return nil, err
	}

	records := make([]ModelRecord, 0, len(list.Data))
	for _, m := range list.Data {
		rec := ModelRecord{
			ID:              m.ID,
			Gateway:         c.Name(),
			PromptPrice:     SanitizePrice(m.Pricing.Prompt),
			CompletionPrice: SanitizePrice(m.Pricing.Completion),
			Health:          HealthUnknown,
		}
		if m.ContextLength > 0 {
			rec.ContextLength = Int(m.ContextLength)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Complete opens a streaming chat completion call against Chutes.
func (c *ChutesClient) Complete(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	return c.openStream(ctx, "/v1/chat/completions", req)
}
