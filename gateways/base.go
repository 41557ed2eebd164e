package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultFetchTimeout bounds a single catalog fetch when the caller's
// context carries no earlier deadline. Completion calls are not capped
// here — the retry controller's cumulative ceiling bounds them instead.
const defaultFetchTimeout = 30 * time.Second

// Base provides common fields and methods shared by REST-based gateway
// implementations. Embed this struct to avoid repeating name, apiKey, and
// baseURL handling across clients.
type Base struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewBase constructs the embedded Base. baseURL has any trailing slash
// stripped.
func NewBase(name, apiKey, baseURL string) Base {
	return Base{
		name:       name,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Name returns the gateway name.
func (b *Base) Name() string { return b.name }

// BaseURL returns the gateway base URL (no trailing slash).
func (b *Base) BaseURL() string { return b.baseURL }

// getJSON performs an authenticated GET and decodes the JSON body into out.
// Non-2xx responses become classified *Error values.
func (b *Base) getJSON(ctx context.Context, path string, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", b.name, err)
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if IsCancellation(err) || IsCancellation(ctx.Err()) {
			return ctx.Err()
		}
		return TransportError(b.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransportError(b.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return StatusError(b.name, resp.StatusCode, resp.Header.Get("Retry-After"), truncate(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: parse model list: %w", b.name, err)
	}
	return nil
}

// openStream POSTs a streaming completion request and hands back the raw
// response body on 200. Any other status is drained, classified, and
// returned as *Error.
func (b *Base) openStream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", b.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", b.name, err)
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if IsCancellation(err) || IsCancellation(ctx.Err()) {
			return nil, ctx.Err()
		}
		return nil, TransportError(b.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		detail, _ := io.ReadAll(resp.Body)
		return nil, StatusError(b.name, resp.StatusCode, resp.Header.Get("Retry-After"), truncate(detail))
	}
	return resp.Body, nil
}

// truncate keeps error detail bounded so a huge upstream error page cannot
// blow up log lines.
func truncate(b []byte) string {
	const max = 512
	s := string(bytes.TrimSpace(b))
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

// SanitizePrice drops negative or absurd price values, returning nil so the
// record reads as "pricing unknown" rather than poisoning cheapest-provider
// selection.
func SanitizePrice(v *float64) *float64 {
	if v == nil || *v < 0 || *v > 1e6 {
		return nil
	}
	return v
}
