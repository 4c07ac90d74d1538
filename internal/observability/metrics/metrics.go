// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ktv_subtitle"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionsEnded   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Audio metrics
	AudioBytesSent  *prometheus.CounterVec
	AudioChunksSent *prometheus.CounterVec

	// Backend metrics
	BackendCandidates *prometheus.CounterVec
	BackendErrors     *prometheus.CounterVec
	MalformedMessages *prometheus.CounterVec

	// Pipeline metrics
	SubtitlesEmitted  *prometheus.CounterVec
	CandidatesDropped *prometheus.CounterVec
	MusicDetected     *prometheus.CounterVec
	SafetyMasked      *prometheus.CounterVec
	PipelineLatency   prometheus.Histogram

	// Dictionary metrics
	DictionaryReloads *prometheus.CounterVec

	// Speaker metrics
	SpeakerDecisions *prometheus.CounterVec
	EmbeddingLatency prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Connection metrics
	ConnectionsActive  *prometheus.GaugeVec
	ConnectionsTotal   *prometheus.CounterVec
	ConnectionDuration *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of streaming sessions started",
		}, []string{"engine"}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active streaming sessions",
		}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of streaming sessions ended, by outcome",
		}, []string{"engine", "outcome"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of streaming sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),

		AudioBytesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Total audio bytes forwarded to STT backends",
		}, []string{"engine"}),
		AudioChunksSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_sent_total",
			Help:      "Total audio chunks forwarded to STT backends",
		}, []string{"engine"}),

		BackendCandidates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_candidates_total",
			Help:      "Total subtitle candidates decoded from backend messages",
		}, []string{"engine"}),
		BackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Total number of terminal backend errors",
		}, []string{"engine", "kind"}),
		MalformedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_malformed_messages_total",
			Help:      "Backend messages that could not be decoded and were skipped",
		}, []string{"engine"}),

		SubtitlesEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtitles_emitted_total",
			Help:      "Total subtitle events emitted",
		}, []string{"engine", "final"}),
		CandidatesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_dropped_total",
			Help:      "Candidates rejected by the postprocessing pipeline",
		}, []string{"reason"}),
		MusicDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "music_detected_total",
			Help:      "Candidates replaced by a music label",
		}, []string{"kind"}),
		SafetyMasked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_masked_total",
			Help:      "Broadcast-safety replacements, by category",
		}, []string{"category"}),
		PipelineLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_seconds",
			Help:      "Postprocessing latency per candidate",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),

		DictionaryReloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dictionary_reloads_total",
			Help:      "Dictionary snapshot rebuilds, by source status",
		}, []string{"status"}),

		SpeakerDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaker_decisions_total",
			Help:      "Speaker-change detector decisions",
		}, []string{"result"}),
		EmbeddingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speaker_embedding_latency_seconds",
			Help:      "Voice embedding request latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),

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

		ConnectionsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open streaming connections, by route",
		}, []string{"route"}),
		ConnectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Finished streaming connections and calls, by route and status",
		}, []string{"route", "status"}),
		ConnectionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_duration_seconds",
			Help:      "Duration of streaming connections and calls in seconds",
			Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300, 1800, 3600},
		}, []string{"route"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart(engine string) {
	m.SessionsTotal.WithLabelValues(engine).Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session reaching a terminal state.
func (m *Metrics) RecordSessionEnd(engine, outcome string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(engine, outcome).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordAudioSent records one chunk forwarded to a backend.
func (m *Metrics) RecordAudioSent(engine string, bytes int) {
	m.AudioBytesSent.WithLabelValues(engine).Add(float64(bytes))
	m.AudioChunksSent.WithLabelValues(engine).Inc()
}

func (m *Metrics) RecordCandidate(engine string) {
	m.BackendCandidates.WithLabelValues(engine).Inc()
}

func (m *Metrics) RecordBackendError(engine, kind string) {
	m.BackendErrors.WithLabelValues(engine, kind).Inc()
}

func (m *Metrics) RecordMalformedMessage(engine string) {
	m.MalformedMessages.WithLabelValues(engine).Inc()
}

// RecordSubtitle records an emitted subtitle event.
func (m *Metrics) RecordSubtitle(engine string, final bool) {
	label := "false"
	if final {
		label = "true"
	}
	m.SubtitlesEmitted.WithLabelValues(engine, label).Inc()
}

func (m *Metrics) RecordDropped(reason string) {
	m.CandidatesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordMusic(kind string) {
	m.MusicDetected.WithLabelValues(kind).Inc()
}

// RecordSafetyMasked records broadcast-safety replacements.
func (m *Metrics) RecordSafetyMasked(category string, count int) {
	if count > 0 {
		m.SafetyMasked.WithLabelValues(category).Add(float64(count))
	}
}

func (m *Metrics) RecordPipelineLatency(seconds float64) {
	m.PipelineLatency.Observe(seconds)
}

// RecordDictionaryReload records a snapshot rebuild. status is ok, missing or invalid.
func (m *Metrics) RecordDictionaryReload(status string) {
	m.DictionaryReloads.WithLabelValues(status).Inc()
}

// RecordSpeakerDecision records a detector result: changed, same, skipped or error.
func (m *Metrics) RecordSpeakerDecision(result string) {
	m.SpeakerDecisions.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordEmbeddingLatency(seconds float64) {
	m.EmbeddingLatency.Observe(seconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordStreamStart records a streaming connection opening on route.
func (m *Metrics) RecordStreamStart(route string) {
	m.ConnectionsActive.WithLabelValues(route).Inc()
}

// RecordStreamEnd records a streaming connection closing.
func (m *Metrics) RecordStreamEnd(route string, success bool, durationSeconds float64) {
	m.ConnectionsActive.WithLabelValues(route).Dec()
	m.RecordCall(route, success, durationSeconds)
}

// RecordCall records a finished unary call or request.
func (m *Metrics) RecordCall(route string, success bool, durationSeconds float64) {
	status := "ok"
	if !success {
		status = "error"
	}
	m.ConnectionsTotal.WithLabelValues(route, status).Inc()
	m.ConnectionDuration.WithLabelValues(route).Observe(durationSeconds)
}
