// Package metrics exports engine and HTTP counters through prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wesm/tagbox/internal/mailbox"
)

// Collector holds the prometheus metrics of one tagbox process. Each
// collector owns its registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// Relation index
	RelationsResolved prometheus.Counter
	RelationsDropped  prometheus.Counter
	RelationsEvicted  prometheus.Counter
	RelationsPending  prometheus.Gauge

	// Mailbox model
	ModelRecomputes *prometheus.GaugeVec
	VisibleMessages prometheus.Gauge

	// Session
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a collector whose metric names carry namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		RelationsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relations_resolved_total",
			Help:      "Relations folded into the tag index",
		}),
		RelationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relations_dropped_total",
			Help:      "Malformed relations skipped by the tag index",
		}),
		RelationsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relations_evicted_total",
			Help:      "Relations removed from the tag index after disappearing from the source",
		}),
		RelationsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relations_pending",
			Help:      "Relations whose target was not resolvable on the last update",
		}),
		ModelRecomputes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_recomputes",
			Help:      "Times each derived stage of the mailbox model was recomputed",
		}, []string{"stage"}),
		VisibleMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "visible_messages",
			Help:      "Messages passing the current filters",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Session refreshes by outcome",
		}, []string{"result"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_refresh_duration_seconds",
			Help:      "Time spent loading and indexing a store snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		c.RelationsResolved,
		c.RelationsDropped,
		c.RelationsEvicted,
		c.RelationsPending,
		c.ModelRecomputes,
		c.VisibleMessages,
		c.Refreshes,
		c.RefreshDuration,
		c.HTTPRequests,
		c.HTTPDuration,
	)
	return c
}

// RecordIndexUpdate implements relindex.Recorder.
func (c *Collector) RecordIndexUpdate(resolved, dropped, evicted, pending int) {
	c.RelationsResolved.Add(float64(resolved))
	c.RelationsDropped.Add(float64(dropped))
	c.RelationsEvicted.Add(float64(evicted))
	c.RelationsPending.Set(float64(pending))
}

// ObserveModel publishes the model's recompute counters and view size.
func (c *Collector) ObserveModel(stats mailbox.Stats, visible int) {
	c.ModelRecomputes.WithLabelValues("index").Set(float64(stats.IndexBuilds))
	c.ModelRecomputes.WithLabelValues("filter").Set(float64(stats.FilterPasses))
	c.ModelRecomputes.WithLabelValues("sort").Set(float64(stats.Sorts))
	c.VisibleMessages.Set(float64(visible))
}

// ObserveRefresh records one session refresh.
func (c *Collector) ObserveRefresh(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Refreshes.WithLabelValues(result).Inc()
	c.RefreshDuration.Observe(d.Seconds())
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Registry returns the prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
