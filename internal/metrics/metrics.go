// Package metrics provides Prometheus metrics for ftclient.
package metrics

import (
	"context"
	"errors"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "ftclient"

const (
	ChannelCommand = "command"
	ChannelData    = "data"

	DirectionSent     = "sent"
	DirectionReceived = "received"

	StatusSuccess  = "success"
	StatusDeclined = "declined"
	StatusError    = "error"
)

// Metrics holds all Prometheus metrics for one ftclient run.
type Metrics struct {
	Registry *prometheus.Registry

	transfersTotal   *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	bytesTotal       *prometheus.CounterVec
	dialDuration     prometheus.Histogram
	transferDuration *prometheus.HistogramVec
	payloadBytes     *prometheus.GaugeVec
}

// New creates a new Metrics instance with a custom Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		transfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Total sessions run, by operation and outcome.",
		}, []string{"op", "status"}),

		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total session failures, by operation and error kind.",
		}, []string{"op", "kind"}),

		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Total framed bytes moved on each channel.",
		}, []string{"channel", "direction"}),

		dialDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dial_duration_seconds",
			Help:      "Time spent opening the command connection, in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		transferDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Duration of a whole session, from connect to teardown, in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"op"}),

		payloadBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payload_bytes",
			Help:      "Size of the last data payload received, in bytes.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.transfersTotal,
		m.errorsTotal,
		m.bytesTotal,
		m.dialDuration,
		m.transferDuration,
		m.payloadBytes,
	)

	return m
}

// ObserveDialDuration records how long the command connection took to open.
func (m *Metrics) ObserveDialDuration(seconds float64) {
	if m == nil {
		return
	}
	m.dialDuration.Observe(seconds)
}

// AddBytes adds n framed bytes to a channel/direction counter.
func (m *Metrics) AddBytes(channel, direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesTotal.WithLabelValues(channel, direction).Add(float64(n))
}

// SetPayloadBytes records the size of the data payload for op.
func (m *Metrics) SetPayloadBytes(op string, n int) {
	if m == nil {
		return
	}
	m.payloadBytes.WithLabelValues(op).Set(float64(n))
}

// SessionStarted returns a SessionTracker that records the outcome of one
// session when Done is called. Safe to call on a nil receiver.
func (m *Metrics) SessionStarted(op string) *SessionTracker {
	if m == nil {
		return nil
	}
	return &SessionTracker{m: m, op: op}
}

// SessionTracker records the outcome of a single session.
type SessionTracker struct {
	m  *Metrics
	op string
}

// Done records the session duration and outcome. kind is the error kind
// label and is ignored when status is not StatusError.
func (t *SessionTracker) Done(durationSec float64, status, kind string) {
	if t == nil {
		return
	}
	t.m.transfersTotal.WithLabelValues(t.op, status).Inc()
	t.m.transferDuration.WithLabelValues(t.op).Observe(durationSec)
	if status == StatusError {
		t.m.errorsTotal.WithLabelValues(t.op, kind).Inc()
	}
}

// ErrorKind returns "timeout" if err is a deadline or network timeout,
// otherwise fallback.
func ErrorKind(err error, fallback string) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return fallback
}

// WriteTextfile writes the registry in the Prometheus text format to path,
// for collection by node_exporter's textfile collector. A nil receiver or an
// empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
