// Package prom adapts a boundedcache Cache's Stats and removal
// notifications onto Prometheus metrics: hit/miss counters, load
// success/failure counters with cumulative load time, and eviction counts
// broken out by removal cause.
package prom

import (
	"github.com/boundedcache/boundedcache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter is a prometheus.Collector that reports a cache's cumulative
// counters at scrape time (Stats is a pull snapshot, so Collect reads it
// fresh rather than tracking its own running totals) plus a RemovalListener
// that increments a cause-labeled counter as removals happen.
type Adapter[K comparable, V any] struct {
	statsFn func() cache.Stats
	sizeFn  func() int64

	hitsDesc          *prometheus.Desc
	missesDesc        *prometheus.Desc
	loadSuccessDesc   *prometheus.Desc
	loadFailureDesc   *prometheus.Desc
	loadDurationDesc  *prometheus.Desc
	evictionTotalDesc *prometheus.Desc
	sizeDesc          *prometheus.Desc

	evictsByCause *prometheus.CounterVec
}

// New constructs an Adapter and registers it (plus its cause-labeled
// eviction counter) with reg. A nil reg registers with
// prometheus.DefaultRegisterer.
func New[K comparable, V any](reg prometheus.Registerer, ns, sub string, statsFn func() cache.Stats, sizeFn func() int64) *Adapter[K, V] {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter[K, V]{
		statsFn: statsFn,
		sizeFn:  sizeFn,
		hitsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "hits_total"), "Cache hits", nil, nil),
		missesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "misses_total"), "Cache misses", nil, nil),
		loadSuccessDesc: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "load_success_total"), "Successful loader calls", nil, nil),
		loadFailureDesc: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "load_failure_total"), "Failed loader calls", nil, nil),
		loadDurationDesc: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "load_duration_seconds_total"), "Cumulative time spent in loader calls", nil, nil),
		evictionTotalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "eviction_total"), "Total evictions across all causes", nil, nil),
		sizeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(ns, sub, "size_entries"), "Estimated number of resident entries", nil, nil),
		evictsByCause: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "eviction_by_cause_total",
			Help:      "Cache removals by cause",
		}, []string{"cause"}),
	}
	reg.MustRegister(a, a.evictsByCause)
	return a
}

func (a *Adapter[K, V]) Describe(ch chan<- *prometheus.Desc) {
	ch <- a.hitsDesc
	ch <- a.missesDesc
	ch <- a.loadSuccessDesc
	ch <- a.loadFailureDesc
	ch <- a.loadDurationDesc
	ch <- a.evictionTotalDesc
	ch <- a.sizeDesc
}

func (a *Adapter[K, V]) Collect(ch chan<- prometheus.Metric) {
	s := a.statsFn()
	ch <- prometheus.MustNewConstMetric(a.hitsDesc, prometheus.CounterValue, float64(s.HitCount))
	ch <- prometheus.MustNewConstMetric(a.missesDesc, prometheus.CounterValue, float64(s.MissCount))
	ch <- prometheus.MustNewConstMetric(a.loadSuccessDesc, prometheus.CounterValue, float64(s.LoadSuccessCount))
	ch <- prometheus.MustNewConstMetric(a.loadFailureDesc, prometheus.CounterValue, float64(s.LoadFailureCount))
	ch <- prometheus.MustNewConstMetric(a.loadDurationDesc, prometheus.CounterValue, s.TotalLoadTime.Seconds())
	ch <- prometheus.MustNewConstMetric(a.evictionTotalDesc, prometheus.CounterValue, float64(s.EvictionCount))
	if a.sizeFn != nil {
		ch <- prometheus.MustNewConstMetric(a.sizeDesc, prometheus.GaugeValue, float64(a.sizeFn()))
	}
}

// Listener returns a cache.RemovalListener suitable for Options.RemovalListener,
// labeling every removal by its cause. Wrap an existing listener with it (call
// both) if the application also wants its own removal-notification handling.
func (a *Adapter[K, V]) Listener() cache.RemovalListener[K, V] {
	return func(n cache.RemovalNotification[K, V]) {
		a.evictsByCause.WithLabelValues(n.Cause.String()).Inc()
	}
}

// reason is kept for callers that only have a RemovalCause value in hand
// (e.g. logging) and want the same label string Listener uses.
func reason(c cache.RemovalCause) string { return c.String() }
