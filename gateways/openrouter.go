package gateways

import (
	"context"
	"io"
	"strconv"
)

// OpenRouterClient implements the Client interface for OpenRouter.
type OpenRouterClient struct {
	Base
}

// NewOpenRouter creates a new OpenRouter client. Pass "" for the default
// base URL.
func NewOpenRouter(apiKey, baseURL string) *OpenRouterClient {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api"
	}
	return &OpenRouterClient{Base: NewBase("openrouter", apiKey, baseURL)}
}

// openRouterModel mirrors one entry of the OpenRouter GET /api/v1/models
// response. Prices are decimal strings in USD per single token.
type openRouterModel struct {
	ID            string `json:"id"`
	ContextLength int    `json:"context_length"`
	Pricing       struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
}

type openRouterModelList struct {
	Data []openRouterModel `json:"data"`
}

// FetchModels returns OpenRouter's catalog normalised into ModelRecord.
func (c *OpenRouterClient) FetchModels(ctx context.Context) ([]ModelRecord, error) {
	var list openRouterModelList
	if err := c.getJSON(ctx, "/v1/models", &list); err != nil {
		return nil, err
	}

	records := make([]ModelRecord, 0, len(list.Data))
	for _, m := range list.Data {
		rec := ModelRecord{
			ID:              m.ID,
			Gateway:         c.Name(),
			PromptPrice:     SanitizePrice(perTokenToPerM(m.Pricing.Prompt)),
			CompletionPrice: SanitizePrice(perTokenToPerM(m.Pricing.Completion)),
			Health:          HealthUnknown,
		}
		if m.ContextLength > 0 {
			rec.ContextLength = Int(m.ContextLength)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Complete opens a streaming chat completion call against OpenRouter.
func (c *OpenRouterClient) Complete(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	return c.openStream(ctx, "/v1/chat/completions", req)
}

// perTokenToPerM converts OpenRouter's per-token decimal string price to
// USD per 1M tokens. Unparseable or missing values become nil.
func perTokenToPerM(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return Float(v * 1e6)
}
