package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "car_report"

// Metrics holds the collectors shared by the API and the worker.
type Metrics struct {
	reportsProcessed *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	parseOutcomes    *prometheus.CounterVec
	payloadsPerJob   prometheus.Histogram
	encodeQuality    prometheus.Histogram
	decodeFailures   prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers all collectors on reg. Use prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reportsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_processed_total",
				Help:      "Reports processed by the worker, by final status",
			},
			[]string{"status"},
		),
		processDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_process_duration_seconds",
				Help:      "Time spent processing one report, by stage",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		parseOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_outcomes_total",
				Help:      "Model responses by parse outcome (strict, repaired, degraded)",
			},
			[]string{"outcome"},
		),
		payloadsPerJob: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_payloads_per_report",
			Help:      "Normalized image payloads sent to the model per report",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		encodeQuality: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_jpeg_quality",
			Help:      "Final JPEG quality chosen by the size back-off",
			Buckets:   []float64{30, 35, 45, 55, 65, 75, 85},
		}),
		decodeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_decode_failures_total",
			Help:      "Uploaded files that could not be decoded",
		}),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) ReportProcessed(status string) {
	m.reportsProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.processDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ParseOutcome(outcome string) {
	m.parseOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePayloads(n int) {
	m.payloadsPerJob.Observe(float64(n))
}

func (m *Metrics) ObserveQuality(q int) {
	m.encodeQuality.Observe(float64(q))
}

func (m *Metrics) DecodeFailed() {
	m.decodeFailures.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
