package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request phases used as the "phase" label.
const (
	phaseListing = "listing"
	phaseDetail  = "detail"
)

// Metrics bundles Prometheus collectors for a plant scrape.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PlantsSaved     prometheus.Counter
	SkippedTotal    *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	BatchesTotal    prometheus.Counter
}

// NewMetrics registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_scraper_requests_total",
			Help: "HTTP requests issued, by crawl phase.",
		}, []string{"phase"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plant_scraper_request_duration_seconds",
			Help:    "HTTP request latency, by crawl phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		PlantsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_scraper_plants_saved_total",
			Help: "Plant records handed to the sink.",
		}),
		SkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_scraper_skipped_total",
			Help: "Detail pages that produced no record, by reason.",
		}, []string{"reason"}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_scraper_retries_total",
			Help: "Request attempts made after a failed attempt.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_scraper_errors_total",
			Help: "Failed request attempts, by error type.",
		}, []string{"error_type"}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_scraper_batches_total",
			Help: "Detail batches completed.",
		}),
	}

	m.Registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.PlantsSaved,
		m.SkippedTotal,
		m.RetriesTotal,
		m.ErrorsTotal,
		m.BatchesTotal,
	)
	return m
}

func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) IncSaved() {
	if m == nil {
		return
	}
	m.PlantsSaved.Inc()
}

func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncBatches() {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
}
