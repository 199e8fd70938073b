// Package telemetry exposes batch metrics over prometheus and exports item
// traces over OTLP.
package telemetry

import (
	"context"
	"net/http"

	"github.com/mohammad-safakhou/bulkcart/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bulkcart"

// Metrics records batch outcomes. It satisfies orchestrator.Reporter.
type Metrics struct {
	registry     *prometheus.Registry
	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	candidates   prometheus.Histogram
	batches      prometheus.Counter
	lastBatch    *prometheus.GaugeVec
	lastFinished prometheus.Gauge
	inFlight     prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Line items processed, by terminal status.",
		}, []string{"status"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "Wall time spent on one line item.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"status"}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_visited",
			Help:      "Product pages opened before a line item reached its status.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed batches.",
		}),
		lastBatch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_items",
			Help:      "Item counts of the most recent batch, by status.",
		}, []string{"status"}),
		lastFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_finished_timestamp_seconds",
			Help:      "Unix time the most recent batch finished.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_items_remaining",
			Help:      "Items of the running batch not yet processed.",
		}),
	}
	m.registry.MustRegister(m.items, m.itemDuration, m.candidates, m.batches, m.lastBatch, m.lastFinished, m.inFlight)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BatchStarted(_ context.Context, _ string, items []models.LineItem) {
	m.inFlight.Set(float64(len(items)))
}

func (m *Metrics) ItemDone(_ context.Context, _ string, res models.ItemResult) {
	status := string(res.Status)
	m.items.WithLabelValues(status).Inc()
	m.itemDuration.WithLabelValues(status).Observe(res.Duration.Seconds())
	m.candidates.Observe(float64(res.CandidatesVisited))
	m.inFlight.Dec()
}

func (m *Metrics) BatchDone(_ context.Context, s models.Summary) {
	m.batches.Inc()
	for _, st := range models.ItemStatuses {
		m.lastBatch.WithLabelValues(string(st)).Set(float64(s.Counts[st]))
	}
	m.lastFinished.Set(float64(s.FinishedAt.Unix()))
	m.inFlight.Set(0)
}
