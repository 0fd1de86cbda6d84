package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeecarter/health-gateway/gateway"
)

// Metrics holds the Prometheus collectors served on /metrics. Each instance
// has its own registry so tests can build several side by side.
type Metrics struct {
	registry        *prometheus.Registry
	queriesTotal    *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
	uploadsTotal    *prometheus.CounterVec
	samplesIngested prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "health_gateway",
				Name:      "queries_total",
				Help:      "Total number of metric queries by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "health_gateway",
				Name:      "query_duration_seconds",
				Help:      "Duration of metric queries in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "health_gateway",
				Name:      "uploads_total",
				Help:      "Total number of Auto Export uploads stored, by store and outcome",
			},
			[]string{"store", "outcome"},
		),
		samplesIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "health_gateway",
				Name:      "samples_ingested_total",
				Help:      "Total number of samples received from Auto Export",
			},
		),
	}
	m.registry.MustRegister(
		m.queriesTotal,
		m.queryDuration,
		m.uploadsTotal,
		m.samplesIngested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveQuery(kind gateway.Kind, err error, elapsed time.Duration) {
	m.queriesTotal.WithLabelValues(string(kind), outcome(err)).Inc()
	m.queryDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveUpload(store string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.uploadsTotal.WithLabelValues(store, result).Inc()
}

func (m *Metrics) AddSamples(n int) {
	m.samplesIngested.Add(float64(n))
}

// outcome names an error class of the gateway's taxonomy.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gateway.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, gateway.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, gateway.ErrNoData):
		return "no_data"
	default:
		return "error"
	}
}
