package observer

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver turns detection events into Prometheus metrics
type MetricsObserver struct {
	Detections       *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	Alerts           *prometheus.CounterVec
	Fetches          *prometheus.CounterVec
	DetectionSeconds prometheus.Histogram
	LastConfidence   prometheus.Gauge
	InFlight         prometheus.Gauge
}

// NewMetricsObserver creates the metrics and registers them on registry
func NewMetricsObserver(registry prometheus.Registerer) (*MetricsObserver, error) {
	m := &MetricsObserver{
		Detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smokesignal_detections_total",
				Help: "Completed detections partitioned by verdict.",
			},
			[]string{"verdict"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smokesignal_detection_failures_total",
				Help: "Failed detections partitioned by lifecycle stage.",
			},
			[]string{"stage"},
		),
		Alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smokesignal_alerts_total",
				Help: "Alert outcomes partitioned by status.",
			},
			[]string{"status"},
		),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smokesignal_image_fetches_total",
				Help: "Remote image fetches partitioned by result.",
			},
			[]string{"result"},
		),
		DetectionSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "smokesignal_detection_duration_seconds",
				Help:    "Time from decoded upload to decision.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
			},
		),
		LastConfidence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "smokesignal_last_confidence",
				Help: "Confidence of the most recent completed detection.",
			},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "smokesignal_detections_in_flight",
				Help: "Detections currently being processed.",
			},
		),
	}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detection metrics: %w", err)
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *MetricsObserver) Describe(ch chan<- *prometheus.Desc) {
	m.Detections.Describe(ch)
	m.Failures.Describe(ch)
	m.Alerts.Describe(ch)
	m.Fetches.Describe(ch)
	ch <- m.DetectionSeconds.Desc()
	ch <- m.LastConfidence.Desc()
	ch <- m.InFlight.Desc()
}

// Collect implements prometheus.Collector
func (m *MetricsObserver) Collect(ch chan<- prometheus.Metric) {
	m.Detections.Collect(ch)
	m.Failures.Collect(ch)
	m.Alerts.Collect(ch)
	m.Fetches.Collect(ch)
	ch <- m.DetectionSeconds
	ch <- m.LastConfidence
	ch <- m.InFlight
}

// OnEvent handles detection events by updating metrics
func (m *MetricsObserver) OnEvent(_ context.Context, event DetectionEvent) {
	switch event.EventType {
	case DetectionStarted:
		m.InFlight.Inc()
	case DetectionCompleted:
		m.InFlight.Dec()
		verdict := "negative"
		if event.Verdict {
			verdict = "positive"
		}
		m.Detections.WithLabelValues(verdict).Inc()
		m.DetectionSeconds.Observe(event.ProcessingTime.Seconds())
		m.LastConfidence.Set(event.Confidence)
	case DetectionFailed:
		m.InFlight.Dec()
		stage := event.Stage
		if stage == "" {
			stage = "unknown"
		}
		m.Failures.WithLabelValues(stage).Inc()
	case ImageFetched:
		m.Fetches.WithLabelValues("ok").Inc()
	case ImageFetchFailed:
		m.Fetches.WithLabelValues("error").Inc()
	case AlertSent:
		m.Alerts.WithLabelValues("sent").Inc()
	case AlertFailed:
		m.Alerts.WithLabelValues("failed").Inc()
	case AlertSkipped:
		reason := "skipped"
		if r, ok := event.Metadata["reason"].(string); ok && r != "" {
			reason = "skipped_" + r
		}
		m.Alerts.WithLabelValues(reason).Inc()
	}
}

// GetObserverName returns the observer name
func (m *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}
