package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/devmgr/internal/events"
)

// Config names the metric namespace.
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Collector turns lifecycle events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	eventCounter *prometheus.CounterVec
	bindCounter  *prometheus.CounterVec
	devices      prometheus.Gauge
	bound        prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector(cfg Config) (*Collector, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "devmgr"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		eventCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lifecycle_events_total",
			Help:      "Device lifecycle events by kind.",
		}, []string{"kind"}),
		bindCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "bind_attempts_total",
			Help:      "Driver bind attempts by driver and result.",
		}, []string{"driver", "result"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "devices",
			Help:      "Devices currently ACTIVE, root anchors excluded.",
		}),
		bound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "bound_devices",
			Help:      "Devices currently bound to a driver.",
		}),
	}

	for _, m := range []prometheus.Collector{c.eventCounter, c.bindCounter, c.devices, c.bound} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return c, nil
}

// Log updates the metrics for ev.
func (c *Collector) Log(ev events.Event) {
	c.eventCounter.With(prometheus.Labels{"kind": ev.Kind.String()}).Inc()
	switch ev.Kind {
	case events.KindActive:
		c.devices.Inc()
	case events.KindRemoved:
		c.devices.Dec()
	case events.KindBound:
		c.bound.Inc()
		c.bindCounter.With(prometheus.Labels{"driver": ev.Driver, "result": "success"}).Inc()
	case events.KindBindFailed:
		c.bindCounter.With(prometheus.Labels{"driver": ev.Driver, "result": "error"}).Inc()
	case events.KindUnbound:
		c.bound.Dec()
	}
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

var _ events.Sink = (*Collector)(nil)
