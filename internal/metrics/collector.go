// Package metrics exposes Prometheus collectors for the teamwork control plane.
//
// Every Collector owns a private registry so tests and multiple managers in
// one process never collide on metric names. All Record methods are safe on
// a nil *Collector, which is what components receive when metrics are off.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "teamwork"

// Lock acquisition results.
const (
	LockAcquired = "acquired"
	LockTimeout  = "timeout"
)

// Collector holds the teamwork metrics.
type Collector struct {
	registry *prometheus.Registry

	lockAcquisitions  *prometheus.CounterVec
	staleLockReclaims prometheus.Counter
	boardClaims       *prometheus.CounterVec
	workOutcomes      *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	liveWorkers       *prometheus.GaugeVec
	executionDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector registered on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		lockAcquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "lock_acquisitions_total",
				Help:      "Directory lock acquisition attempts by result",
			},
			[]string{"result"},
		),
		staleLockReclaims: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "stale_lock_reclaims_total",
				Help:      "Lock directories removed because their holder looked dead",
			},
		),
		boardClaims: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "board_claims_total",
				Help:      "Board tasks claimed by teammates",
			},
			[]string{"team"},
		),
		workOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "work_items_total",
				Help:      "Work item outcomes by final status",
			},
			[]string{"team", "status"},
		),
		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "messages_sent_total",
				Help:      "Messages delivered to inboxes by type",
			},
			[]string{"team", "type"},
		),
		liveWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "live_workers",
				Help:      "Teammate workers currently running",
			},
			[]string{"team"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "execution_duration_seconds",
				Help:      "Work item execution time in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"team", "status"},
		),
	}
}

// Registry returns the private registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordLockAcquisition counts one lock attempt outcome (LockAcquired or LockTimeout).
func (c *Collector) RecordLockAcquisition(result string) {
	if c == nil {
		return
	}
	c.lockAcquisitions.WithLabelValues(result).Inc()
}

// RecordStaleReclaim counts one reclaimed stale lock.
func (c *Collector) RecordStaleReclaim() {
	if c == nil {
		return
	}
	c.staleLockReclaims.Inc()
}

// RecordBoardClaim counts one successful board task claim.
func (c *Collector) RecordBoardClaim(team string) {
	if c == nil {
		return
	}
	c.boardClaims.WithLabelValues(team).Inc()
}

// RecordWorkOutcome counts a finished work item and observes its duration.
func (c *Collector) RecordWorkOutcome(team, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.workOutcomes.WithLabelValues(team, status).Inc()
	c.executionDuration.WithLabelValues(team, status).Observe(d.Seconds())
}

// RecordMessage counts one delivered message.
func (c *Collector) RecordMessage(team, msgType string) {
	if c == nil {
		return
	}
	c.messagesSent.WithLabelValues(team, msgType).Inc()
}

// WorkerStarted increments the live worker gauge.
func (c *Collector) WorkerStarted(team string) {
	if c == nil {
		return
	}
	c.liveWorkers.WithLabelValues(team).Inc()
}

// WorkerStopped decrements the live worker gauge.
func (c *Collector) WorkerStopped(team string) {
	if c == nil {
		return
	}
	c.liveWorkers.WithLabelValues(team).Dec()
}
