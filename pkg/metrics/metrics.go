// Package metrics exposes Prometheus collectors for fits, webhooks and HTTP
// requests. A nil *Metrics records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kacperjurak/gopeakcore"
)

const namespace = "peakfit"

// Fit outcomes used as the outcome label.
const (
	OutcomeFitted       = "fitted"
	OutcomeInsufficient = "insufficient_data"
	OutcomeNoFit        = "no_fit"
	OutcomeInvalid      = "invalid"
)

type Metrics struct {
	registry *prometheus.Registry

	fits         *prometheus.CounterVec
	fitDuration  prometheus.Histogram
	webhooks     *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fits_total",
			Help:      "Profiles fitted, by winning model and outcome.",
		}, []string{"model", "outcome"}),
		fitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Time spent fitting one profile against all candidate models.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by handler and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "code"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "webhook_queue_depth",
			Help:      "Webhooks waiting to be delivered.",
		}),
	}
	m.registry.MustRegister(
		m.fits, m.fitDuration, m.webhooks, m.httpDuration, m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFit records one profile fit. q is nil when err is set.
func (m *Metrics) ObserveFit(q *gopeakcore.FitQuality, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.fitDuration.Observe(d.Seconds())
	model, outcome := "none", Outcome(err)
	if q != nil && err == nil {
		model = q.Model
	}
	m.fits.WithLabelValues(model, outcome).Inc()
}

// Outcome maps a fit error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeFitted
	case errors.Is(err, gopeakcore.ErrInsufficientData):
		return OutcomeInsufficient
	case errors.Is(err, gopeakcore.ErrNoFit):
		return OutcomeNoFit
	default:
		return OutcomeInvalid
	}
}

func (m *Metrics) ObserveWebhook(err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.webhooks.WithLabelValues(result).Inc()
}

func (m *Metrics) WebhookDropped() {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues("dropped").Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// InstrumentHandler wraps handler and records its latency under name.
func (m *Metrics) InstrumentHandler(name string, handler http.Handler) http.Handler {
	if m == nil {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler.ServeHTTP(wrapped, r)
		m.httpDuration.WithLabelValues(name, strconv.Itoa(wrapped.statusCode)).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
