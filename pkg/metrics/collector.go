package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/store"
)

// collectTimeout bounds the store walk during a scrape.
const collectTimeout = 10 * time.Second

// QueueDepthCollector exposes per-module task counts as gauges, reading
// them from the store at scrape time.
type QueueDepthCollector struct {
	store store.Interface
	desc  *prometheus.Desc
}

// NewQueueDepthCollector creates a collector over the given store.
func NewQueueDepthCollector(s store.Interface) *QueueDepthCollector {
	return &QueueDepthCollector{
		store: s,
		desc: prometheus.NewDesc(
			"nlpipe_store_tasks",
			"Number of tasks in the store by module and lifecycle state",
			[]string{"module", "status"},
			nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *QueueDepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *QueueDepthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	modules, err := c.store.Modules(ctx)
	if err != nil {
		logger.Warn("Queue depth collection failed", "error", err)
		return
	}

	for _, module := range modules {
		stats, err := c.store.Statistics(ctx, module)
		if err != nil {
			logger.Warn("Queue depth collection failed", "module", module, "error", err)
			continue
		}
		for status, count := range stats {
			ch <- prometheus.MustNewConstMetric(
				c.desc,
				prometheus.GaugeValue,
				float64(count),
				module, string(status),
			)
		}
	}
}

// Ensure QueueDepthCollector implements prometheus.Collector.
var _ prometheus.Collector = (*QueueDepthCollector)(nil)
