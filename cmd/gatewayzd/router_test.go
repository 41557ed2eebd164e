package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	relay "github.com/alpaca-network/gatewayz-relay"
	"github.com/alpaca-network/gatewayz-relay/gateways"
)

// testGateway is a scripted gateways.Client for handler tests.
type testGateway struct {
	name    string
	records []gateways.ModelRecord
	err     error
	body    string
}

func (g *testGateway) Name() string { return g.name }

func (g *testGateway) FetchModels(context.Context) ([]gateways.ModelRecord, error) {
	return g.records, g.err
}

func (g *testGateway) Complete(context.Context, gateways.Request) (io.ReadCloser, error) {
	if g.err != nil {
		return nil, g.err
	}
	return io.NopCloser(strings.NewReader(g.body)), nil
}

func testPolicy() relay.RetryConfig {
	return relay.RetryConfig{BaseDelayMs: 1, Multiplier: 2, MaxDelayMs: 5, CeilingMs: 50, MaxAttempts: 1}
}

func newTestServer(t *testing.T, clients ...gateways.Client) *httptest.Server {
	t.Helper()
	reg := gateways.NewRegistry()
	for _, c := range clients {
		reg.Register(c)
	}
	agg := relay.NewAggregator(reg, relay.AggregatorOptions{
		Budget: time.Second,
		Policy: testPolicy().Policy(),
	})
	proxy := relay.NewCompletionProxy(reg, relay.ProxyOptions{
		Policy:           testPolicy().Policy(),
		FirstByteTimeout: time.Second,
	})
	srv := httptest.NewServer(newRouter(agg, proxy))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &testGateway{name: "g"})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &testGateway{name: "g"})
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestModelsEndpoint(t *testing.T) {
	srv := newTestServer(t,
		&testGateway{name: "g1", records: []gateways.ModelRecord{
			{ID: "openai/gpt-4", Gateway: "g1"},
			{ID: "meta/llama-3", Gateway: "g1"},
		}},
		&testGateway{name: "g2", records: []gateways.ModelRecord{
			{ID: "openai/gpt-4", Gateway: "g2"},
		}},
		&testGateway{name: "g3", err: &gateways.Error{
			Gateway: "g3", Status: 401, Class: gateways.ClassFatal,
		}},
	)

	resp, err := http.Get(srv.URL + "/v1/models?sort_by=providers")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Object         string `json:"object"`
		Total          int    `json:"total"`
		GatewaysOK     int    `json:"gateways_ok"`
		GatewaysFailed int    `json:"gateways_failed"`
		Data           []struct {
			CanonicalID string `json:"canonical_id"`
			Providers   []any  `json:"providers"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Object != "list" || body.Total != 2 {
		t.Errorf("object=%s total=%d", body.Object, body.Total)
	}
	if body.GatewaysOK != 2 || body.GatewaysFailed != 1 {
		t.Errorf("ok=%d failed=%d", body.GatewaysOK, body.GatewaysFailed)
	}
	if body.Data[0].CanonicalID != "openai/gpt-4" || len(body.Data[0].Providers) != 2 {
		t.Errorf("first model = %+v", body.Data[0])
	}
}

func TestModelsEndpointBadQuery(t *testing.T) {
	srv := newTestServer(t, &testGateway{name: "g"})
	for _, q := range []string{"?sort_by=bogus", "?limit=abc", "?min_providers=-1"} {
		resp, err := http.Get(srv.URL + "/v1/models" + q)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestModelsEndpointAllFailed(t *testing.T) {
	srv := newTestServer(t, &testGateway{name: "g", err: &gateways.Error{
		Gateway: "g", Status: 401, Class: gateways.ClassFatal,
	}})
	resp, err := http.Get(srv.URL + "/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when every gateway fails", resp.StatusCode)
	}
}

func TestCompletionsBlocking(t *testing.T) {
	srv := newTestServer(t, &testGateway{name: "g", body: "" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"hello\"}}],\"usage\":{\"prompt_tokens\":2,\"completion_tokens\":1,\"total_tokens\":3}}\n" +
		"data: [DONE]\n"})

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"g/m","messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body relay.Completion
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Content != "hello" || body.Gateway != "g" || body.Usage.TotalTokens != 3 {
		t.Errorf("completion = %+v", body)
	}
}

func TestCompletionsStreamingSSE(t *testing.T) {
	srv := newTestServer(t, &testGateway{name: "g", body: "" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n" +
		"data: [DONE]\n"})

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json",
		strings.NewReader(`{"model":"g/m","stream":true,"messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if !strings.HasSuffix(strings.TrimSpace(out), "data: [DONE]") {
		t.Errorf("stream must end with the done sentinel:\n%s", out)
	}

	var text strings.Builder
	for _, line := range strings.Split(out, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "[DONE]" {
			continue
		}
		var chunk struct {
			Object  string `json:"object"`
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Errorf("object = %s", chunk.Object)
		}
		for _, c := range chunk.Choices {
			text.WriteString(c.Delta.Content)
		}
	}
	if text.String() != "hello" {
		t.Errorf("streamed content = %q", text.String())
	}
}

func TestCompletionsValidation(t *testing.T) {
	srv := newTestServer(t, &testGateway{name: "g"})
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"model":`},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"no messages", `{"model":"g/m"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json",
				strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCompletionsUpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        *gateways.Error
		wantStatus int
	}{
		{"rate limited", &gateways.Error{Gateway: "g", Status: 429, Class: gateways.ClassRateLimited}, http.StatusTooManyRequests},
		{"fatal", &gateways.Error{Gateway: "g", Status: 400, Class: gateways.ClassFatal}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &testGateway{name: "g", err: tt.err})
			resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json",
				strings.NewReader(`{"model":"g/m","messages":[{"role":"user","content":"hi"}]}`))
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body struct {
				Error struct {
					Message string `json:"message"`
					Type    string `json:"type"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error.Type != "upstream_error" || body.Error.Message == "" {
				t.Errorf("error body = %+v", body.Error)
			}
		})
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := &relay.Config{Gateways: []relay.GatewayConfig{
		{Name: "openrouter", APIKey: "k"},
		{Name: "groq", APIKey: "k"},
		{Name: "vertex", APIKey: "tok", Project: "p", Region: "us-central1"},
	}}
	reg, err := buildRegistry(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 3 {
		t.Errorf("Len = %d", reg.Len())
	}
	for _, name := range []string{"openrouter", "groq", "vertex"} {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("gateway %s not registered", name)
		}
	}

	cfg.Gateways = append(cfg.Gateways, relay.GatewayConfig{Name: "bedrock"})
	if _, err := buildRegistry(cfg); err == nil {
		t.Error("unknown gateway name must fail")
	}
}
