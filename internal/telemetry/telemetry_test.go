package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordBatch(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()
	items := []models.LineItem{{Code: "A1"}, {Code: "Z9"}, {Code: "B2"}}

	m.BatchStarted(ctx, "run-1", items)
	if got := testutil.ToFloat64(m.inFlight); got != 3 {
		t.Fatalf("remaining = %v", got)
	}
	results := []models.ItemResult{
		{Code: "A1", Status: models.ItemStatusAdded, CandidatesVisited: 1, Duration: 4 * time.Second},
		{Code: "Z9", Status: models.ItemStatusNoResults, Duration: time.Second},
		{Code: "B2", Status: models.ItemStatusAdded, CandidatesVisited: 2, Duration: 9 * time.Second},
	}
	for _, r := range results {
		m.ItemDone(ctx, "run-1", r)
	}
	finished := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	m.BatchDone(ctx, models.Summarize("run-1", finished.Add(-time.Minute), finished, results))

	if got := testutil.ToFloat64(m.items.WithLabelValues("added")); got != 2 {
		t.Fatalf("added = %v", got)
	}
	if got := testutil.ToFloat64(m.items.WithLabelValues("no_results")); got != 1 {
		t.Fatalf("no_results = %v", got)
	}
	if got := testutil.ToFloat64(m.batches); got != 1 {
		t.Fatalf("batches = %v", got)
	}
	if got := testutil.ToFloat64(m.lastBatch.WithLabelValues("no_match")); got != 0 {
		t.Fatalf("last no_match = %v", got)
	}
	if got := testutil.ToFloat64(m.lastFinished); got != float64(finished.Unix()) {
		t.Fatalf("finished = %v", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("remaining after batch = %v", got)
	}
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ItemDone(context.Background(), "run-1", models.ItemResult{Status: models.ItemStatusFailed})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `bulkcart_items_total{status="failed"} 1`) {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", NewMetrics().Handler(), nil) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not stop")
	}
}

func TestSetupTracingDisabledIsNoop(t *testing.T) {
	tr, err := SetupTracing(context.Background(), config.TelemetryConfig{Enabled: true}, "bulkcart", "test")
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if tr.tp != nil {
		t.Fatalf("no provider expected without an endpoint")
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	var nilTracing *Tracing
	if err := nilTracing.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil Shutdown: %v", err)
	}
}
