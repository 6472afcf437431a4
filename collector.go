package cpuinstr

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type collectorConfig struct {
	namespace   string
	constLabels prometheus.Labels
}

// CollectorOption configures a Collector constructed by NewCollector.
type CollectorOption func(*collectorConfig)

// WithNamespace replaces the "cpuinstr" metric name prefix.
func WithNamespace(ns string) CollectorOption {
	return func(cfg *collectorConfig) { cfg.namespace = ns }
}

// WithConstLabels attaches static labels to every exported metric.
func WithConstLabels(l prometheus.Labels) CollectorOption {
	return func(cfg *collectorConfig) {
		if len(l) == 0 {
			return
		}
		if cfg.constLabels == nil {
			cfg.constLabels = make(prometheus.Labels, len(l))
		}
		for k, v := range l {
			cfg.constLabels[k] = v
		}
	}
}

// Collector exports the cumulative per-CPU instruction counts of a Source as
// Prometheus counters. Every scrape reads each CPU once.
type Collector struct {
	mu  sync.Mutex // scrapes may run concurrently; the source may not
	src Source

	instructions *prometheus.Desc
	failures     prometheus.Counter
}

// NewCollector returns a Collector reading from src.
func NewCollector(src Source, opts ...CollectorOption) *Collector {
	cfg := collectorConfig{namespace: "cpuinstr"}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return &Collector{
		src: src,
		instructions: prometheus.NewDesc(
			prometheus.BuildFQName(cfg.namespace, "", "instructions_retired_total"),
			"Instructions retired per CPU since the counters were enabled.",
			[]string{"cpu"},
			cfg.constLabels,
		),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.namespace,
			Name:        "read_failures_total",
			Help:        "Total number of failed instruction counter reads.",
			ConstLabels: cfg.constLabels,
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.instructions
	c.failures.Describe(ch)
}

// Collect implements prometheus.Collector. A CPU whose read fails is left out
// of the scrape and counted in read_failures_total.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cpu := range c.src.CPUs() {
		s, err := c.src.Instant(cpu)
		if err != nil {
			c.failures.Inc()
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			c.instructions,
			prometheus.CounterValue,
			float64(s.Count()),
			strconv.Itoa(cpu),
		)
	}
	c.failures.Collect(ch)
}
