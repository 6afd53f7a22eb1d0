package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotSource is the view of a snapshot store the collector reports on
type SnapshotSource interface {
	Services() []string
	Count(service string) int
	Newest(service string) (time.Time, bool)
}

// StoreCollector reports snapshot store contents at scrape time
type StoreCollector struct {
	source SnapshotSource
	now    func() time.Time

	snapshots *prometheus.Desc
	staleness *prometheus.Desc
}

// NewStoreCollector creates a collector over source
func NewStoreCollector(namespace string, source SnapshotSource, now func() time.Time) *StoreCollector {
	if now == nil {
		now = time.Now
	}
	return &StoreCollector{
		source: source,
		now:    now,
		snapshots: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "stored_snapshots"),
			"Number of stored snapshots per service",
			[]string{"service"}, nil,
		),
		staleness: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "newest_snapshot_age_seconds"),
			"Age of the newest stored snapshot per service",
			[]string{"service"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.snapshots
	ch <- c.staleness
}

// Collect implements prometheus.Collector
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	now := c.now()
	for _, service := range c.source.Services() {
		ch <- prometheus.MustNewConstMetric(c.snapshots, prometheus.GaugeValue, float64(c.source.Count(service)), service)
		if newest, ok := c.source.Newest(service); ok {
			ch <- prometheus.MustNewConstMetric(c.staleness, prometheus.GaugeValue, now.Sub(newest).Seconds(), service)
		}
	}
}
