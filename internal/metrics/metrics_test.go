package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestAllMetricsRegistered(t *testing.T) {
	// Touch each vec so it shows up in the gather output.
	GatewayFetches.WithLabelValues("test", "success").Inc()
	GatewayFetchDuration.WithLabelValues("test").Observe(0.1)
	CatalogModels.Set(1)
	StreamTTFT.WithLabelValues("test").Observe(0.1)
	CompletionsTotal.WithLabelValues("test", "completed").Inc()
	Retries.WithLabelValues("test", "transient").Inc()
	MalformedFrames.WithLabelValues("test").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	for _, name := range []string{
		"relay_gateway_fetches_total",
		"relay_gateway_fetch_duration_seconds",
		"relay_catalog_models",
		"relay_stream_ttft_seconds",
		"relay_completions_total",
		"relay_retries_total",
		"relay_malformed_frames_total",
	} {
		mf, ok := byName[name]
		if !ok {
			t.Errorf("metric %s not registered", name)
			continue
		}
		if mf.GetHelp() == "" {
			t.Errorf("metric %s has no help text", name)
		}
	}
}

func TestFetchCounterLabels(t *testing.T) {
	before := testCounterValue(t, "relay_gateway_fetches_total", "labeltest", "cache_hit")
	GatewayFetches.WithLabelValues("labeltest", "cache_hit").Inc()
	after := testCounterValue(t, "relay_gateway_fetches_total", "labeltest", "cache_hit")
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}

func testCounterValue(t *testing.T, name, gateway, outcome string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["gateway"] == gateway && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
