// Package metrics provides Prometheus metrics collection for the master
// process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus metrics of the supervisor. A nil Collector
// records nothing.
type Collector struct {
	// Process metrics
	Spawns  *prometheus.CounterVec
	Exits   *prometheus.CounterVec
	Ready   *prometheus.GaugeVec
	Respawn *prometheus.CounterVec

	// Handshake metrics
	HandshakeDuration *prometheus.HistogramVec

	// Update metrics
	UpdateEvents   *prometheus.CounterVec
	PendingUpdates *prometheus.GaugeVec
}

// New creates a collector registered with reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		Spawns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ldem",
				Name:      "module_spawns_total",
				Help:      "Total number of module processes spawned",
			},
			[]string{"module"},
		),
		Exits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ldem",
				Name:      "module_exits_total",
				Help:      "Total number of module process exits by kind (controlled, crash)",
			},
			[]string{"module", "kind"},
		),
		Ready: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ldem",
				Name:      "module_ready",
				Help:      "Whether the module process completed its handshake",
			},
			[]string{"module"},
		),
		Respawn: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ldem",
				Name:      "module_respawns_total",
				Help:      "Total number of respawn attempts by outcome",
			},
			[]string{"module", "outcome"},
		),
		HandshakeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ldem",
				Name:      "handshake_duration_seconds",
				Help:      "Time spent waiting for a handshake phase",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"module", "phase"},
		),
		UpdateEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ldem",
				Name:      "update_events_total",
				Help:      "Total number of update lifecycle transitions",
			},
			[]string{"module", "event"},
		),
		PendingUpdates: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ldem",
				Name:      "pending_updates",
				Help:      "Number of updates queued for a module",
			},
			[]string{"module"},
		),
	}
}

// ObserveSpawn records a spawned process.
func (c *Collector) ObserveSpawn(module string) {
	if c == nil {
		return
	}
	c.Spawns.WithLabelValues(module).Inc()
}

// ObserveExit records a process exit.
func (c *Collector) ObserveExit(module string, controlled bool) {
	if c == nil {
		return
	}
	kind := "crash"
	if controlled {
		kind = "controlled"
	}
	c.Exits.WithLabelValues(module, kind).Inc()
	c.Ready.WithLabelValues(module).Set(0)
}

// SetReady records that a module completed its handshake.
func (c *Collector) SetReady(module string) {
	if c == nil {
		return
	}
	c.Ready.WithLabelValues(module).Set(1)
}

// ObserveRespawn records the outcome of a respawn attempt.
func (c *Collector) ObserveRespawn(module string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.Respawn.WithLabelValues(module, outcome).Inc()
}

// ObserveHandshake records how long a handshake phase took.
func (c *Collector) ObserveHandshake(module, phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.HandshakeDuration.WithLabelValues(module, phase).Observe(d.Seconds())
}

// ObserveUpdate records an update transition and the resulting queue size.
func (c *Collector) ObserveUpdate(module, event string, pending int) {
	if c == nil {
		return
	}
	c.UpdateEvents.WithLabelValues(module, event).Inc()
	c.PendingUpdates.WithLabelValues(module).Set(float64(pending))
}

// SetPending records the queue size of a module.
func (c *Collector) SetPending(module string, pending int) {
	if c == nil {
		return
	}
	c.PendingUpdates.WithLabelValues(module).Set(float64(pending))
}
