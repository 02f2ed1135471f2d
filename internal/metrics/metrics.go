// Package metrics holds the Prometheus instruments shared across packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatview_http_requests_total",
		Help: "Total number of HTTP requests",
	})
	HTTPErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatview_http_errors_total",
		Help: "Total number of HTTP 5xx errors",
	})
)

// Render metrics
var (
	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatview_render_duration_seconds",
		Help:    "Time spent composing a channel transcript",
		Buckets: prometheus.DefBuckets,
	})
	referenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatview_reference_failures_total",
		Help: "Reply, forward and channel references that could not be resolved",
	}, []string{"kind"})
	placeholderLeaks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatview_placeholder_leaks_total",
		Help: "Markdown placeholders found unresolved after rendering",
	})
)

// Cache metrics
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatview_cache_hits_total",
		Help: "Total cache hits",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatview_cache_misses_total",
		Help: "Total cache misses",
	})
	ChannelWindows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatview_channel_windows",
		Help: "Number of channel message windows held in memory",
	})
)

// Feed metrics
var feedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatview_feed_events_total",
	Help: "Gateway dispatch events applied to the channel cache",
}, []string{"type"})

// IncrementCacheHit increments the cache hit counter
func IncrementCacheHit() {
	cacheHitsTotal.Inc()
}

// IncrementCacheMiss increments the cache miss counter
func IncrementCacheMiss() {
	cacheMissesTotal.Inc()
}

// IncrementReferenceFailure counts a degraded reference of the given kind
// ("reply", "forward", "channel").
func IncrementReferenceFailure(kind string) {
	referenceFailures.WithLabelValues(kind).Inc()
}

// IncrementPlaceholderLeak counts a renderer invariant violation.
func IncrementPlaceholderLeak() {
	placeholderLeaks.Inc()
}

// IncrementFeedEvent counts an applied gateway event.
func IncrementFeedEvent(eventType string) {
	feedEvents.WithLabelValues(eventType).Inc()
}
