package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// register adds c to the default registry. When an identical collector is
// already registered, the existing one is returned so that components
// constructed more than once (tests, restarts) share a series.
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		// conflicting descriptor: keep the unregistered collector usable
	}
	return c
}

// Counter wraps prometheus.Counter
type Counter struct {
	counter prometheus.Counter
}

// NewCounter creates and registers a counter.
func NewCounter(name, help string, labels map[string]string) *Counter {
	return &Counter{counter: register(prometheus.NewCounter(prometheus.CounterOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}))}
}

func (c *Counter) Inc()          { c.counter.Inc() }
func (c *Counter) Add(v float64) { c.counter.Add(v) }

// Collector exposes the underlying metric for tests and custom registries.
func (c *Counter) Collector() prometheus.Counter { return c.counter }

// Gauge wraps prometheus.Gauge
type Gauge struct {
	gauge prometheus.Gauge
}

// NewGauge creates and registers a gauge.
func NewGauge(name, help string, labels map[string]string) *Gauge {
	return &Gauge{gauge: register(prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}))}
}

func (g *Gauge) Set(v float64) { g.gauge.Set(v) }
func (g *Gauge) Inc()          { g.gauge.Inc() }
func (g *Gauge) Dec()          { g.gauge.Dec() }
func (g *Gauge) Add(v float64) { g.gauge.Add(v) }
func (g *Gauge) Sub(v float64) { g.gauge.Sub(v) }

// Collector exposes the underlying metric for tests and custom registries.
func (g *Gauge) Collector() prometheus.Gauge { return g.gauge }

// Histogram wraps prometheus.Histogram
type Histogram struct {
	histogram prometheus.Histogram
}

// NewHistogram creates and registers a histogram.
func NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	return &Histogram{histogram: register(prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
		Buckets:     buckets,
	}))}
}

// Observe adds a single observation to the histogram
func (h *Histogram) Observe(v float64) {
	h.histogram.Observe(v)
}
