package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenRouterFetchModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"openai/gpt-4","context_length":8192,
			 "pricing":{"prompt":"0.00003","completion":"0.00006"}},
			{"id":"free/model","pricing":{"prompt":"0","completion":""}},
			{"id":"broken/pricing","pricing":{"prompt":"not-a-number","completion":"-1"}}
		]}`))
	}))
	defer srv.Close()

	c := NewOpenRouter("test-key", srv.URL)
	records, err := c.FetchModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records", len(records))
	}

	gpt4 := records[0]
	if gpt4.PromptPrice == nil || *gpt4.PromptPrice != 30 {
		t.Errorf("prompt price = %v, want 30 USD/1M (0.00003 per token)", gpt4.PromptPrice)
	}
	if gpt4.CompletionPrice == nil || *gpt4.CompletionPrice != 60 {
		t.Errorf("completion price = %v, want 60", gpt4.CompletionPrice)
	}
	if gpt4.ContextLength == nil || *gpt4.ContextLength != 8192 {
		t.Errorf("context length = %v", gpt4.ContextLength)
	}
	if gpt4.Gateway != "openrouter" {
		t.Errorf("gateway = %s", gpt4.Gateway)
	}

	free := records[1]
	if free.PromptPrice == nil || *free.PromptPrice != 0 {
		t.Errorf("zero price must survive, got %v", free.PromptPrice)
	}
	if free.CompletionPrice != nil {
		t.Errorf("missing price must be nil, got %v", *free.CompletionPrice)
	}

	broken := records[2]
	if broken.PromptPrice != nil || broken.CompletionPrice != nil {
		t.Errorf("unparseable and negative prices must be nil: %v %v",
			broken.PromptPrice, broken.CompletionPrice)
	}
}

func TestGroqFetchModelsSkipsInactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"id":"llama-3.1-8b-instant","context_window":131072,"active":true},
			{"id":"retired-model","context_window":4096,"active":false}
		]}`))
	}))
	defer srv.Close()

	records, err := NewGroq("k", srv.URL).FetchModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "llama-3.1-8b-instant" {
		t.Fatalf("records = %+v", records)
	}
	if *records[0].ContextLength != 131072 {
		t.Errorf("context length = %d", *records[0].ContextLength)
	}
}

func TestFetchModelsErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		header    http.Header
		wantClass ErrorClass
		wantHint  time.Duration
	}{
		{"rate limited with hint", 429, http.Header{"Retry-After": {"7"}}, ClassRateLimited, 7 * time.Second},
		{"server error", 503, nil, ClassTransient, 0},
		{"bad key", 401, nil, ClassFatal, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for k, vs := range tt.header {
					w.Header()[k] = vs
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := NewPortkey("k", srv.URL).FetchModels(context.Background())
			var ge *Error
			if !errors.As(err, &ge) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if ge.Class != tt.wantClass {
				t.Errorf("class = %v, want %v", ge.Class, tt.wantClass)
			}
			if ge.Status != tt.status {
				t.Errorf("status = %d", ge.Status)
			}
			if ge.RetryAfter != tt.wantHint {
				t.Errorf("retry-after = %v, want %v", ge.RetryAfter, tt.wantHint)
			}
		})
	}
}

func TestFetchModelsCancellation(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChutes("k", srv.URL).FetchModels(ctx)
	if !IsCancellation(err) {
		t.Errorf("err = %v, want cancellation", err)
	}
}

func TestCompleteStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("accept = %q", got)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if !req.Stream {
			t.Error("stream must be forced on")
		}
		if req.Model != "llama-3" {
			t.Errorf("model = %s", req.Model)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	body, err := NewFeatherless("k", srv.URL).Complete(context.Background(), Request{
		Model:    "llama-3",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "data: [DONE]\n\n" {
		t.Errorf("body = %q", raw)
	}
}

func TestCompleteNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenRouter("k", srv.URL).Complete(context.Background(), Request{
		Model:    "m",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var ge *Error
	if !errors.As(err, &ge) || ge.Class != ClassRateLimited {
		t.Fatalf("err = %v, want rate-limited *Error", err)
	}
}

func TestRequestValidate(t *testing.T) {
	valid := Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}}

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr bool
	}{
		{"valid", func(*Request) {}, false},
		{"missing model", func(r *Request) { r.Model = "" }, true},
		{"no messages", func(r *Request) { r.Messages = nil }, true},
		{"temperature too high", func(r *Request) { r.Temperature = Float(2.5) }, true},
		{"temperature boundary", func(r *Request) { r.Temperature = Float(2) }, false},
		{"top_p out of range", func(r *Request) { r.TopP = Float(1.5) }, true},
		{"zero max_tokens", func(r *Request) { r.MaxTokens = Int(0) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if err := req.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizePrice(t *testing.T) {
	if SanitizePrice(nil) != nil {
		t.Error("nil in, nil out")
	}
	if SanitizePrice(Float(-1)) != nil {
		t.Error("negative prices must be dropped")
	}
	if SanitizePrice(Float(2e6)) != nil {
		t.Error("absurd prices must be dropped")
	}
	if v := SanitizePrice(Float(12.5)); v == nil || *v != 12.5 {
		t.Errorf("sane price mangled: %v", v)
	}
}
