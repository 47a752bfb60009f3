// Package metrics exposes Prometheus metrics for the chat relay.
//
// Metrics:
//   - chatbot_turns_total: chat turns by status (ok, validation, gateway, storage)
//   - chatbot_gateway_duration_seconds: completion call latency
//   - chatbot_tokens_total: tokens reported by the completion API
//   - chatbot_messages_appended_total: stored messages by role
//   - chatbot_sessions_cleared_total: clear operations on existing sessions
//   - chatbot_backups_total: backups by status
//
// All Record methods are safe to call on a nil *Collector.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot"

// Collector owns the chatbot metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	turnsTotal       *prometheus.CounterVec
	gatewayDuration  prometheus.Histogram
	tokensTotal      prometheus.Counter
	messagesAppended *prometheus.CounterVec
	sessionsCleared  prometheus.Counter
	backupsTotal     *prometheus.CounterVec
}

// NewCollector creates and registers the metrics. A nil registry gets a fresh
// private one with the Go and process collectors attached.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of chat turns by outcome",
			},
			[]string{"status"},
		),
		gatewayDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_duration_seconds",
				Help:      "Duration of completion API calls in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		tokensTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Total tokens reported by the completion API",
			},
		),
		messagesAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_appended_total",
				Help:      "Total messages stored by role",
			},
			[]string{"role"},
		),
		sessionsCleared: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_cleared_total",
				Help:      "Total clear operations on existing sessions",
			},
		),
		backupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "Total database backups by status",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		c.turnsTotal,
		c.gatewayDuration,
		c.tokensTotal,
		c.messagesAppended,
		c.sessionsCleared,
		c.backupsTotal,
	)
	return c
}

// RecordTurn records the outcome of a chat turn.
func (c *Collector) RecordTurn(status string) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(status).Inc()
}

// RecordGatewayCall records a completion call and the tokens it reported.
func (c *Collector) RecordGatewayCall(duration time.Duration, tokens int) {
	if c == nil {
		return
	}
	c.gatewayDuration.Observe(duration.Seconds())
	if tokens > 0 {
		c.tokensTotal.Add(float64(tokens))
	}
}

// RecordMessage records a stored message.
func (c *Collector) RecordMessage(role string) {
	if c == nil {
		return
	}
	c.messagesAppended.WithLabelValues(role).Inc()
}

// RecordClear records a clear of an existing session.
func (c *Collector) RecordClear() {
	if c == nil {
		return
	}
	c.sessionsCleared.Inc()
}

// RecordBackup records a backup attempt.
func (c *Collector) RecordBackup(status string) {
	if c == nil {
		return
	}
	c.backupsTotal.WithLabelValues(status).Inc()
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
