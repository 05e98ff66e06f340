// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "realtime_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsActive    prometheus.Gauge
	SessionsFinished  *prometheus.CounterVec
	SessionsRejected  *prometheus.CounterVec
	CaptureDuration   prometheus.Histogram
	JoinTimeouts      prometheus.Counter
	DeviceResolutions *prometheus.CounterVec

	// Capture metrics
	FramesRead       prometheus.Counter
	StreamOverflows  prometheus.Counter
	StreamReadErrors prometheus.Counter
	ArchiveErrors    prometheus.Counter

	// Window metrics
	WindowsScheduled   prometheus.Counter
	WindowsTranscribed *prometheus.CounterVec
	WindowsDropped     prometheus.Counter
	TranscriptAppends  prometheus.Counter

	// Engine metrics
	EngineLatency *prometheus.HistogramVec
	EngineErrors  *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Control surface metrics
	ControlCalls       *prometheus.CounterVec
	TranscriptWatchers prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of recording sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of recording sessions currently processing",
		}),
		SessionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Total number of recording sessions finished, by terminal state",
		}, []string{"state"}),
		SessionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Total number of control operations rejected",
		}, []string{"op", "reason"}),
		CaptureDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Seconds of audio captured per session",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		JoinTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_join_timeouts_total",
			Help:      "Total number of capture loops that did not exit within the join timeout",
		}),
		DeviceResolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_resolutions_total",
			Help:      "Total number of device resolutions, by winning strategy",
		}, []string{"strategy"}),

		FramesRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_frames_read_total",
			Help:      "Total number of sample frames read from capture devices",
		}),
		StreamOverflows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_stream_overflows_total",
			Help:      "Total number of input overflows tolerated during capture",
		}),
		StreamReadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_stream_read_errors_total",
			Help:      "Total number of failed device reads",
		}),
		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_archive_errors_total",
			Help:      "Total number of archive write or finalize failures",
		}),

		WindowsScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_scheduled_total",
			Help:      "Total number of audio windows handed to the scheduler",
		}),
		WindowsTranscribed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_transcribed_total",
			Help:      "Total number of audio windows transcribed, by outcome",
		}, []string{"outcome"}),
		WindowsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_dropped_total",
			Help:      "Total number of windows received after the scheduler was flushed",
		}),
		TranscriptAppends: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_appends_total",
			Help:      "Total number of non-empty results appended to transcripts",
		}),

		EngineLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_latency_seconds",
			Help:      "Transcription engine latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider", "pass"}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Total number of transcription engine errors",
		}, []string{"provider", "error_type"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		ControlCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_calls_total",
			Help:      "Total number of control calls, by transport, method and code",
		}, []string{"transport", "method", "code"}),
		TranscriptWatchers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcript_watchers",
			Help:      "Number of clients currently watching transcript updates",
		}),
	}
}

// RecordSessionStart records a new recording session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a recording session reaching a terminal state.
func (m *Metrics) RecordSessionEnd(state string, audioSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsFinished.WithLabelValues(state).Inc()
	m.CaptureDuration.Observe(audioSeconds)
}

// RecordRejected records a control operation rejected in the current state.
func (m *Metrics) RecordRejected(op, reason string) {
	m.SessionsRejected.WithLabelValues(op, reason).Inc()
}

// RecordDeviceResolved records which strategy produced the capture device.
func (m *Metrics) RecordDeviceResolved(strategy string) {
	m.DeviceResolutions.WithLabelValues(strategy).Inc()
}

// RecordFrames records sample frames read from a device.
func (m *Metrics) RecordFrames(frames int) {
	m.FramesRead.Add(float64(frames))
}

// RecordOverflow records a tolerated input overflow.
func (m *Metrics) RecordOverflow() {
	m.StreamOverflows.Inc()
}

// RecordReadError records a failed device read.
func (m *Metrics) RecordReadError() {
	m.StreamReadErrors.Inc()
}

// RecordArchiveError records an archive write or finalize failure.
func (m *Metrics) RecordArchiveError() {
	m.ArchiveErrors.Inc()
}

// RecordJoinTimeout records a capture loop that outlived the join timeout.
func (m *Metrics) RecordJoinTimeout() {
	m.JoinTimeouts.Inc()
}

// RecordWindowScheduled records a window handed to the scheduler.
func (m *Metrics) RecordWindowScheduled() {
	m.WindowsScheduled.Inc()
}

// RecordWindowOutcome records how a window transcription ended
// (appended, empty, failed).
func (m *Metrics) RecordWindowOutcome(outcome string) {
	m.WindowsTranscribed.WithLabelValues(outcome).Inc()
}

// RecordWindowDropped records a window that arrived after flush.
func (m *Metrics) RecordWindowDropped() {
	m.WindowsDropped.Inc()
}

// RecordAppend records a transcript append.
func (m *Metrics) RecordAppend() {
	m.TranscriptAppends.Inc()
}

// RecordEngineCall records a transcription engine call.
func (m *Metrics) RecordEngineCall(provider, pass string, latencySeconds float64) {
	m.EngineLatency.WithLabelValues(provider, pass).Observe(latencySeconds)
}

// RecordEngineError records a transcription engine error.
func (m *Metrics) RecordEngineError(provider, errorType string) {
	m.EngineErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordControlCall records a control call on the HTTP or gRPC surface.
func (m *Metrics) RecordControlCall(transport, method, code string) {
	m.ControlCalls.WithLabelValues(transport, method, code).Inc()
}

// RecordWatcher adjusts the transcript watcher gauge.
func (m *Metrics) RecordWatcher(delta int) {
	m.TranscriptWatchers.Add(float64(delta))
}
