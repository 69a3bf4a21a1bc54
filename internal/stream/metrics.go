package stream

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	sessions       prometheus.Gauge
	frames         *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	exhausted      *prometheus.CounterVec
	chunks         *prometheus.CounterVec
	encodeFailures *prometheus.CounterVec
	annotateFails  *prometheus.CounterVec
	annotateTime   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "firewatch", Subsystem: "stream", Name: "sessions_active",
			Help: "Camera sessions with a running acquisition loop.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firewatch", Subsystem: "stream", Name: "frames_read_total",
			Help: "Frames read from camera sources.",
		}, []string{"camera_id"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firewatch", Subsystem: "stream", Name: "reconnect_attempts_total",
			Help: "Source reconnect attempts.",
		}, []string{"camera_id"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firewatch", Subsystem: "stream", Name: "sessions_exhausted_total",
			Help: "Sessions stopped after the reconnect budget ran out.",
		}, []string{"camera_id"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firewatch", Subsystem: "stream", Name: "chunks_sent_total",
			Help: "Multipart chunks written to viewers.",
		}, []string{"camera_id"}),
		encodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firewatch", Subsystem: "stream", Name: "encode_failures_total",
			Help: "Frames skipped because JPEG encoding failed.",
		}, []string{"camera_id"}),
		annotateFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firewatch", Subsystem: "stream", Name: "annotation_failures_total",
			Help: "Frames streamed raw because annotation failed.",
		}, []string{"camera_id"}),
		annotateTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "firewatch", Subsystem: "stream", Name: "annotate_seconds",
			Help:    "Annotator latency.",
			Buckets: []float64{.01, .025, .05, .1, .2, .3, .5, 1},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sessions, m.frames, m.reconnects, m.exhausted,
			m.chunks, m.encodeFailures, m.annotateFails, m.annotateTime)
	}
	return m
}

func label(cameraID int64) string { return strconv.FormatInt(cameraID, 10) }

func (m *Metrics) sessionUp() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionDown() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) frameRead(cameraID int64) {
	if m != nil {
		m.frames.WithLabelValues(label(cameraID)).Inc()
	}
}

func (m *Metrics) reconnectAttempt(cameraID int64) {
	if m != nil {
		m.reconnects.WithLabelValues(label(cameraID)).Inc()
	}
}

func (m *Metrics) sessionExhausted(cameraID int64) {
	if m != nil {
		m.exhausted.WithLabelValues(label(cameraID)).Inc()
	}
}

func (m *Metrics) chunkSent(cameraID int64) {
	if m != nil {
		m.chunks.WithLabelValues(label(cameraID)).Inc()
	}
}

func (m *Metrics) encodeFailed(cameraID int64) {
	if m != nil {
		m.encodeFailures.WithLabelValues(label(cameraID)).Inc()
	}
}

func (m *Metrics) annotated(cameraID int64, took time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.annotateTime.Observe(took.Seconds())
	if failed {
		m.annotateFails.WithLabelValues(label(cameraID)).Inc()
	}
}
