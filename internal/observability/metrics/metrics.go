// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "audio_event_pipeline"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Notification metrics
	NotificationsTotal   *prometheus.CounterVec
	NotificationsIgnored *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Orchestration metrics
	OrchestrationRequests *prometheus.CounterVec
	OrchestrationLatency  *prometheus.HistogramVec
	ResolverCache         *prometheus.CounterVec
	RunsTriggered         prometheus.Counter
	RunTriggerFailures    *prometheus.CounterVec

	// Transcription metrics
	STTAttempts       *prometheus.CounterVec
	STTLatency        *prometheus.HistogramVec
	STTErrors         *prometheus.CounterVec
	SegmentsCompleted *prometheus.CounterVec
	LifecycleErrors   *prometheus.CounterVec
	BatchDuration     prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all Prometheus metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of storage notifications handled, by outcome",
		}, []string{"status"}),
		NotificationsIgnored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_ignored_total",
			Help:      "Total number of ignored notifications, by rule",
		}, []string{"rule"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of inbound HTTP requests",
		}, []string{"method", "route", "code"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Inbound HTTP request latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 90},
		}, []string{"method", "route"}),

		OrchestrationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestration_requests_total",
			Help:      "Total number of orchestration API calls",
		}, []string{"operation", "result"}),
		OrchestrationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orchestration_latency_seconds",
			Help:      "Orchestration API call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 90},
		}, []string{"operation"}),
		ResolverCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_cache_total",
			Help:      "Resource resolver cache lookups, by resource and result",
		}, []string{"resource", "result"}),
		RunsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_triggered_total",
			Help:      "Total number of pipeline runs submitted",
		}),
		RunTriggerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_trigger_failures_total",
			Help:      "Total number of failed run triggers, by stage",
		}, []string{"stage"}),

		STTAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_attempts_total",
			Help:      "Total number of segment transcription attempts",
		}, []string{"provider"}),
		STTLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Speech-to-text latency per attempt in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		STTErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of failed transcription attempts",
		}, []string{"provider"}),
		SegmentsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_completed_total",
			Help:      "Total number of segments finished, by outcome",
		}, []string{"outcome"}),
		LifecycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_lifecycle_errors_total",
			Help:      "Total number of illegal segment state transitions, by attempted transition",
		}, []string{"transition"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of a transcription batch",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordNotification records the outcome of a handled notification.
func (m *Metrics) RecordNotification(status string) {
	m.NotificationsTotal.WithLabelValues(status).Inc()
}

// RecordIgnored records a notification rejected by the named rule.
func (m *Metrics) RecordIgnored(rule string) {
	m.NotificationsIgnored.WithLabelValues(rule).Inc()
}

// RecordHTTPRequest records an inbound HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, code string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latencySeconds)
}

// RecordOrchestrationCall records an orchestration API call.
func (m *Metrics) RecordOrchestrationCall(operation string, err error, latencySeconds float64) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.OrchestrationRequests.WithLabelValues(operation, result).Inc()
	m.OrchestrationLatency.WithLabelValues(operation).Observe(latencySeconds)
}

// RecordCacheLookup records a resolver cache hit or miss.
func (m *Metrics) RecordCacheLookup(resource string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ResolverCache.WithLabelValues(resource, result).Inc()
}

// RecordRunTriggered records a submitted pipeline run.
func (m *Metrics) RecordRunTriggered() {
	m.RunsTriggered.Inc()
}

// RecordTriggerFailure records a failed trigger at the given stage.
func (m *Metrics) RecordTriggerFailure(stage string) {
	m.RunTriggerFailures.WithLabelValues(stage).Inc()
}

// RecordSTTAttempt records one transcription attempt.
func (m *Metrics) RecordSTTAttempt(provider string, err error, latencySeconds float64) {
	m.STTAttempts.WithLabelValues(provider).Inc()
	m.STTLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.STTErrors.WithLabelValues(provider).Inc()
	}
}

// RecordSegmentCompleted records a segment reaching a terminal outcome.
func (m *Metrics) RecordSegmentCompleted(success bool) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	m.SegmentsCompleted.WithLabelValues(outcome).Inc()
}

// RecordLifecycleError records an illegal segment state transition.
func (m *Metrics) RecordLifecycleError(transition string) {
	m.LifecycleErrors.WithLabelValues(transition).Inc()
}

// RecordBatch records a finished transcription batch.
func (m *Metrics) RecordBatch(durationSeconds float64) {
	m.BatchDuration.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
