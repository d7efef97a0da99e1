// Package metrics exposes sweep and Discord call counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/autodelete/internal/discord"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sweepsTotal       *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	messagesEvaluated *prometheus.CounterVec
	messagesDeleted   *prometheus.CounterVec
	channelOutcomes   *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	deleteCalls       *prometheus.CounterVec
	nextSweep         prometheus.Gauge
}

// New creates the collectors and registers them on reg (DefaultRegisterer when nil).
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeps_total",
				Help:      "Completed sweeps by status",
			},
			[]string{"status"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Wall time of a full sweep",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		messagesEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_evaluated_total",
				Help:      "Messages fetched and checked against retention",
			},
			[]string{"channel"},
		),
		messagesDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_deleted_total",
				Help:      "Messages deleted",
			},
			[]string{"channel"},
		),
		channelOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_outcomes_total",
				Help:      "Per-channel sweep outcomes",
			},
			[]string{"outcome"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "429 responses by operation",
			},
			[]string{"operation"},
		),
		deleteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discord_calls_total",
				Help:      "Discord calls by operation and result kind",
			},
			[]string{"operation", "result"},
		),
		nextSweep: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "next_sweep_timestamp_seconds",
				Help:      "Unix time of the next scheduled sweep",
			},
		),
	}

	reg.MustRegister(
		m.sweepsTotal,
		m.sweepDuration,
		m.messagesEvaluated,
		m.messagesDeleted,
		m.channelOutcomes,
		m.rateLimited,
		m.deleteCalls,
		m.nextSweep,
	)

	return m
}

func (m *Metrics) SweepFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepsTotal.WithLabelValues(status).Inc()
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) ChannelFinished(channelID, outcome string, evaluated, deleted int) {
	if m == nil {
		return
	}
	m.channelOutcomes.WithLabelValues(outcome).Inc()
	m.messagesEvaluated.WithLabelValues(channelID).Add(float64(evaluated))
	m.messagesDeleted.WithLabelValues(channelID).Add(float64(deleted))
}

func (m *Metrics) RateLimited(operation string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(operation).Inc()
}

func (m *Metrics) DeleteCall(operation string, err error) {
	if m == nil {
		return
	}
	m.deleteCalls.WithLabelValues(operation, discord.Classify(err).String()).Inc()
}

func (m *Metrics) SetNextSweep(t time.Time) {
	if m == nil {
		return
	}
	m.nextSweep.Set(float64(t.Unix()))
}
