package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	relay "github.com/alpaca-network/gatewayz-relay"
	"github.com/alpaca-network/gatewayz-relay/catalog"
	"github.com/alpaca-network/gatewayz-relay/gateways"
	"github.com/alpaca-network/gatewayz-relay/internal/logging"
	"github.com/alpaca-network/gatewayz-relay/internal/stream"
)

// newRouter builds the HTTP router.
func newRouter(agg *relay.Aggregator, proxy *relay.CompletionProxy) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/v1/models", modelsHandler(agg))
	r.Post("/v1/chat/completions", completionsHandler(proxy))

	return r
}

// modelsHandler serves the merged cross-gateway catalog with the optional
// query filters. Per-gateway failures are absorbed into a smaller result;
// only a total failure surfaces as an error.
func modelsHandler(agg *relay.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := parseQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}

		result, err := agg.Aggregate(r.Context())
		if err != nil {
			status := http.StatusBadGateway
			if !errors.Is(err, relay.ErrAllGatewaysFailed) {
				status = http.StatusInternalServerError
			}
			writeError(w, status, err.Error(), "upstream_error")
			return
		}

		models := query.Apply(result.Models)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object":          "list",
			"data":            models,
			"total":           len(result.Models),
			"gateways_ok":     result.Succeeded,
			"gateways_failed": result.Failed,
		})
	}
}

func parseQuery(r *http.Request) (catalog.Query, error) {
	q := catalog.Query{
		Search: r.URL.Query().Get("search"),
		SortBy: r.URL.Query().Get("sort_by"),
	}
	for name, dst := range map[string]*int{
		"min_providers": &q.MinProviders,
		"limit":         &q.Limit,
		"offset":        &q.Offset,
	} {
		if s := r.URL.Query().Get(name); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				return q, fmt.Errorf("%s must be an integer", name)
			}
			*dst = v
		}
	}
	return q, q.Validate()
}

// completionsHandler serves chat completions, streaming SSE when the
// request asks for it and a single JSON body otherwise.
func completionsHandler(proxy *relay.CompletionProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gateways.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "invalid_request_error")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}

		if !req.Stream {
			resp, err := proxy.CompleteBlocking(r.Context(), req)
			if err != nil {
				writeUpstreamError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
			return
		}

		events, err := proxy.Complete(r.Context(), req)
		if err != nil {
			writeUpstreamError(w, err)
			return
		}
		writeSSE(w, req.Model, events)
	}
}

// sseChunk is the OpenAI-compatible streaming frame emitted to the caller.
type sseChunk struct {
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []sseChoice   `json:"choices,omitempty"`
	Usage   *stream.Usage `json:"usage,omitempty"`
}

type sseChoice struct {
	Index int      `json:"index"`
	Delta sseDelta `json:"delta"`
}

type sseDelta struct {
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning_content,omitempty"`
}

// writeSSE re-emits decoded events to the caller as SSE frames, flushing
// each one as it arrives — never buffering the response. A failure after
// content has been delivered is written as an in-band error object rather
// than an abrupt disconnect.
func writeSSE(w http.ResponseWriter, model string, events <-chan stream.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	for ev := range events {
		chunk := sseChunk{Object: "chat.completion.chunk", Model: model}
		switch ev.Kind {
		case stream.KindContent:
			chunk.Choices = []sseChoice{{Delta: sseDelta{Content: ev.Text}}}
		case stream.KindReasoning:
			chunk.Choices = []sseChoice{{Delta: sseDelta{Reasoning: ev.Text}}}
		case stream.KindUsage:
			u := ev.Usage
			chunk.Usage = &u
		case stream.KindDone:
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
			flush()
			return
		case stream.KindError:
			payload, _ := json.Marshal(map[string]any{
				"error": map[string]any{
					"message": safeMessage(ev.Err),
					"detail":  ev.Err.Error(),
					"type":    "stream_error",
				},
			})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
			_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
			flush()
			return
		}
		data, _ := json.Marshal(chunk)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		flush()
	}
}

// writeError writes an OpenAI-compatible JSON error response.
func writeError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
		},
	})
}

// writeUpstreamError maps a classified gateway failure onto an HTTP status,
// preserving the upstream detail alongside a safe generic message.
func writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var ge *gateways.Error
	switch {
	case errors.As(err, &ge):
		switch ge.Class {
		case gateways.ClassRateLimited:
			status = http.StatusTooManyRequests
		case gateways.ClassFatal:
			status = http.StatusBadRequest
		}
	case errors.Is(err, relay.ErrNoGateway):
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": safeMessage(err),
			"detail":  err.Error(),
			"type":    "upstream_error",
		},
	})
}

func safeMessage(err error) string {
	var ge *gateways.Error
	if errors.As(err, &ge) {
		return ge.SafeMessage()
	}
	return "request failed"
}
