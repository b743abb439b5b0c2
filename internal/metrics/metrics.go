// Package metrics provides Prometheus metrics for the FTPS client.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gonzalop/ftps/trust"
)

const namespace = "ftps"

// Collector records client, session and trust measurements on its own
// registry. It satisfies ftps.MetricsCollector and session.Metrics.
type Collector struct {
	reg *prometheus.Registry

	commandsTotal     *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	transfersTotal    *prometheus.CounterVec
	transferDuration  *prometheus.HistogramVec
	connectionsTotal  *prometheus.CounterVec
	trustDecisions    *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	sessionsOpenTotal prometheus.Counter
}

// New registers the client metrics on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		commandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of control commands sent",
			},
			[]string{"command", "success"},
		),
		commandDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command round trip time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		transferBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_bytes_total",
				Help:      "Total bytes moved over data connections",
			},
			[]string{"operation"},
		),
		transfersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Total number of finished data transfers",
			},
			[]string{"operation"},
		),
		transferDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_duration_seconds",
				Help:      "Data transfer duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"operation"},
		),
		connectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Control connection attempts by result",
			},
			[]string{"result"},
		),
		trustDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trust_decisions_total",
				Help:      "Certificate trust decisions by outcome",
			},
			[]string{"decision"},
		),
		sessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of live sessions",
			},
		),
		sessionsOpenTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_opened_total",
				Help:      "Total number of sessions created",
			},
		),
	}
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// RecordCommand records one command/reply round trip.
func (c *Collector) RecordCommand(cmd string, success bool, duration time.Duration) {
	cmd = strings.ToUpper(cmd)
	c.commandsTotal.WithLabelValues(cmd, strconv.FormatBool(success)).Inc()
	c.commandDuration.WithLabelValues(cmd).Observe(duration.Seconds())
}

// RecordTransfer records a finished data transfer.
func (c *Collector) RecordTransfer(operation string, bytes int64, duration time.Duration) {
	c.transfersTotal.WithLabelValues(operation).Inc()
	c.transferBytes.WithLabelValues(operation).Add(float64(bytes))
	c.transferDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordConnection records a control connection attempt.
func (c *Collector) RecordConnection(success bool, reason string) {
	if reason == "" {
		reason = "unknown"
		if success {
			reason = "connected"
		}
	}
	c.connectionsTotal.WithLabelValues(reason).Inc()
}

// SessionOpened counts a new session.
func (c *Collector) SessionOpened() {
	c.sessionsOpenTotal.Inc()
	c.sessionsActive.Inc()
}

// SessionClosed counts a removed session.
func (c *Collector) SessionClosed() {
	c.sessionsActive.Dec()
}

// TrustDecided counts a certificate decision. The host is not used as a
// label.
func (c *Collector) TrustDecided(_ string, d trust.Decision) {
	c.trustDecisions.WithLabelValues(d.String()).Inc()
}
