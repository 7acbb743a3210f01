package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the streaming client.
type Metrics struct {
	registry *prometheus.Registry

	// Upload metrics
	FramesSent prometheus.Counter
	BytesSent  prometheus.Counter

	// Receive metrics
	MessagesReceived *prometheus.CounterVec
	ProtocolErrors   prometheus.Counter
	SegmentChanges   *prometheus.CounterVec

	// Session metrics
	ActiveSessions  prometheus.Gauge
	Sessions        *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	RealtimeFactor  prometheus.Histogram

	// Readiness metrics
	ReadinessProbes *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics on a private registry so that several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperlive_frames_sent_total",
			Help: "Total number of audio frames sent",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperlive_audio_bytes_sent_total",
			Help: "Total number of audio bytes sent",
		}),

		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperlive_messages_received_total",
			Help: "Total number of inbound messages by kind",
		}, []string{"kind"}),
		ProtocolErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "whisperlive_protocol_errors_total",
			Help: "Total number of malformed or unrecognised inbound messages",
		}),
		SegmentChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperlive_segment_changes_total",
			Help: "Transcript segment changes by type",
		}, []string{"change"}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "whisperlive_active_sessions",
			Help: "Current number of streaming sessions",
		}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperlive_sessions_total",
			Help: "Total number of finished sessions by outcome",
		}, []string{"outcome"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisperlive_session_duration_seconds",
			Help:    "Wall-clock duration of streaming sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		RealtimeFactor: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisperlive_realtime_factor",
			Help:    "Session wall time divided by audio duration",
			Buckets: prometheus.LinearBuckets(0.5, 0.25, 12), // 0.5 to 3.25
		}),

		ReadinessProbes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperlive_readiness_probes_total",
			Help: "Total number of readiness probes by result",
		}, []string{"result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "whisperlive_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whisperlive_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// Handler serves this instance's metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FrameSent records one outbound audio frame.
func (m *Metrics) FrameSent(bytes int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

// MessageReceived counts one decoded inbound message.
func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

func (m *Metrics) SegmentApplied(change string) {
	if m == nil {
		return
	}
	m.SegmentChanges.WithLabelValues(change).Inc()
}

// SessionStarted marks a session as in flight.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionFinished records the outcome and timing of a session.
func (m *Metrics) SessionFinished(outcome string, elapsed, audio time.Duration) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(elapsed.Seconds())
	if audio > 0 {
		m.RealtimeFactor.Observe(elapsed.Seconds() / audio.Seconds())
	}
}

// SessionEnded releases a SessionStarted.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// RecordProbe counts a readiness probe.
func (m *Metrics) RecordProbe(ready bool) {
	if m == nil {
		return
	}
	result := "down"
	if ready {
		result = "up"
	}
	m.ReadinessProbes.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps next with request counting under the given endpoint label.
// Websocket upgrades are passed the original writer so hijacking works.
func (m *Metrics) Middleware(endpoint string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			m.RecordHTTPRequest(r.Method, endpoint, "101", time.Since(start).Seconds())
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}
