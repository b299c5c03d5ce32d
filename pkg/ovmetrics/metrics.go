// Package ovmetrics exports reactor and recorder runtime state as
// Prometheus metrics.
package ovmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ov-collective/ovgo/pkg/ovio"
)

const namespace = "ov"

// Metrics holds every metric vector this process exports plus its own
// registry, so multiple ov processes in the same binary (tests) never
// collide on the default global registry.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsOpen  prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	BytesReceived    prometheus.Gauge
	BytesSent        prometheus.Gauge

	RecordingsOpen   prometheus.Gauge
	FramesDropped    prometheus.Counter
	RecordingsClosed prometheus.Counter
	LogRotations     prometheus.Counter
}

// New creates a Metrics instance registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Number of connections currently held in the reactor's connection table.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total connections accepted or dialed since process start.",
		}),
		BytesReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bytes_received",
			Help:      "Sum of bytes read across connections currently in the table.",
		}),
		BytesSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bytes_sent",
			Help:      "Sum of bytes written across connections currently in the table.",
		}),
		RecordingsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recordings_open",
			Help:      "Number of recordings currently held in the recorder's stream table.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_frames_dropped_total",
			Help:      "RTP frames dropped by the recorder worker pool due to a full queue.",
		}),
		RecordingsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_closed_total",
			Help:      "Recordings that have been closed (silence cutoff, explicit stop, or roll).",
		}),
		LogRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_rotations_total",
			Help:      "Process log file rotations performed since start.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsOpen, m.ConnectionsTotal, m.BytesReceived, m.BytesSent,
		m.RecordingsOpen, m.FramesDropped, m.RecordingsClosed, m.LogRotations,
	)
	return m
}

// Handler returns an http.Handler serving this instance's metrics in
// the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTable snapshots connection counts and cumulative byte stats
// from the reactor's connection table. Call periodically (e.g. from a
// ticker); each connection's stats are read under that connection's
// lock, the same lock its reader and writer goroutines take per update.
func (m *Metrics) ObserveTable(table *ovio.Table) {
	conns := table.Snapshot()
	m.ConnectionsOpen.Set(float64(len(conns)))

	var recv, sent uint64
	for _, c := range conns {
		st := c.Stats()
		recv += st.RecvBytes
		sent += st.SendBytes
	}
	m.BytesReceived.Set(float64(recv))
	m.BytesSent.Set(float64(sent))
}

// SetRecordingsOpen reports how many recordings the stream table
// currently holds, whether or not each has an output file open.
func (m *Metrics) SetRecordingsOpen(n int) {
	m.RecordingsOpen.Set(float64(n))
}

// IncFramesDropped records one RTP frame dropped by the recorder
// worker pool due to back-pressure.
func (m *Metrics) IncFramesDropped() {
	m.FramesDropped.Inc()
}

// IncRecordingsClosed records one recording finishing (silence
// cutoff, explicit stop, or roll).
func (m *Metrics) IncRecordingsClosed() {
	m.RecordingsClosed.Inc()
}

// IncLogRotations records one process log file rotation.
func (m *Metrics) IncLogRotations() {
	m.LogRotations.Inc()
}
