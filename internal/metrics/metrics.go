package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"strconv"
	"time"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	IngestTotal      *prometheus.CounterVec
	UpsertedTotal    prometheus.Counter
	ProviderDuration prometheus.Histogram
	StoreDuration    *prometheus.HistogramVec
}

// New registers every collector on reg. Passing a fresh registry keeps tests isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status_class"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		IngestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rates_ingest_total",
				Help: "Ingestion runs by outcome kind",
			},
			[]string{"outcome"},
		),

		UpsertedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "rates_upserted_total",
				Help: "Rate quotes written to storage",
			},
		),

		ProviderDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rates_provider_duration_seconds",
				Help:    "Rate provider call duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),

		StoreDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rates_store_duration_seconds",
				Help:    "Storage call duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"op"},
		),
	}
}

// NewNop returns metrics bound to a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) RecordRequest(route, method string, status int, took time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, StatusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(took.Seconds())
}

func (m *Metrics) RecordIngest(outcome string, upserted int) {
	m.IngestTotal.WithLabelValues(outcome).Inc()
	if upserted > 0 {
		m.UpsertedTotal.Add(float64(upserted))
	}
}

func (m *Metrics) ObserveProvider(took time.Duration) {
	m.ProviderDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveStore(op string, took time.Duration) {
	m.StoreDuration.WithLabelValues(op).Observe(took.Seconds())
}

// StatusClass collapses a status code to "2xx", "4xx" and so on.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}

	return strconv.Itoa(status/100) + "xx"
}
