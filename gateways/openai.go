package gateways

import (
	"context"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements the Client interface for the OpenAI API.
//
// Catalog discovery goes through the official SDK; the streaming completion
// path uses the raw HTTP stream so the shared decoder sees upstream bytes
// exactly as sent.
type OpenAIClient struct {
	Base
	sdk openai.Client
}

// NewOpenAI creates a new OpenAI client. Pass "" for the default base URL.
func NewOpenAI(apiKey, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	resolvedBase := "https://api.openai.com"
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
		resolvedBase = baseURL
	}
	return &OpenAIClient{
		Base: NewBase("openai", apiKey, resolvedBase),
		sdk:  openai.NewClient(opts...),
	}
}

// FetchModels lists the account's available models via the SDK. OpenAI does
// not expose pricing or context windows on this endpoint.
func (c *OpenAIClient) FetchModels(ctx context.Context) ([]ModelRecord, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFetchTimeout)
		defer cancel()
	}

	page, err := c.sdk.Models.List(ctx)
	if err != nil {
		if IsCancellation(err) || IsCancellation(ctx.Err()) {
			return nil, ctx.Err()
		}
		return nil, TransportError(c.Name(), err)
	}

	var records []ModelRecord
	for page != nil {
		for _, m := range page.Data {
			records = append(records, ModelRecord{
				ID:      m.ID,
				Gateway: c.Name(),
				Health:  HealthUnknown,
			})
		}
		next, err := page.GetNextPage()
		if err != nil {
			return nil, TransportError(c.Name(), err)
		}
		page = next
	}
	return records, nil
}

// Complete opens a streaming chat completion call against OpenAI.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	return c.openStream(ctx, "/v1/chat/completions", req)
}
