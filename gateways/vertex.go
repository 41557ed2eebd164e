package gateways

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
)

// VertexClient implements the Client interface for Google Vertex AI.
//
// Vertex authenticates with short-lived OAuth2 access tokens rather than a
// static API key, so the client is built around an oauth2.TokenSource. The
// completion path uses Vertex's OpenAI-compatible chat endpoint, which keeps
// the wire format uniform with the other gateways.
type VertexClient struct {
	Base
	project string
	region  string
}

// NewVertex creates a new Vertex AI client. Pass "" for the default base
// URL to use the regional endpoint.
func NewVertex(project, region string, ts oauth2.TokenSource, baseURL string) *VertexClient {
	if region == "" {
		region = "us-central1"
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)
	}
	b := NewBase("vertex", "", baseURL)
	b.httpClient = oauth2.NewClient(context.Background(), ts)
	return &VertexClient{Base: b, project: project, region: region}
}

// vertexModelList mirrors the Vertex publisher-models listing response.
type vertexModelList struct {
	PublisherModels []struct {
		// Name is a full resource path, e.g.
		// "publishers/google/models/gemini-2.0-flash".
		Name string `json:"name"`
	} `json:"publisherModels"`
}

// FetchModels lists Google's publisher models, normalising the resource
// path into a "google/<model>" identifier.
func (c *VertexClient) FetchModels(ctx context.Context) ([]ModelRecord, error) {
	path := fmt.Sprintf("/v1/projects/%s/locations/%s/publishers/google/models", c.project, c.region)
	var list vertexModelList
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, err
	}

	records := make([]ModelRecord, 0, len(list.PublisherModels))
	for _, m := range list.PublisherModels {
		id := m.Name
		if i := strings.LastIndex(id, "/models/"); i >= 0 {
			id = "google/" + id[i+len("/models/"):]
		}
		records = append(records, ModelRecord{
			ID:      id,
			Gateway: c.Name(),
			Health:  HealthUnknown,
		})
	}
	return records, nil
}

// Complete opens a streaming call against Vertex's OpenAI-compatible chat
// endpoint.
func (c *VertexClient) Complete(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	path := fmt.Sprintf("/v1/projects/%s/locations/%s/endpoints/openapi/chat/completions", c.project, c.region)
	return c.openStream(ctx, path, req)
}
