// Package metrics holds the Prometheus collectors and the metrics server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blog_http_requests_total",
		Help: "HTTP requests by route template and status code.",
	}, []string{"route", "code"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blog_http_request_duration_seconds",
		Help:    "HTTP request latency by route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blog_page_cache_lookups_total",
		Help: "Page cache lookups by result.",
	}, []string{"result"})

	postsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blog_posts_created_total",
		Help: "Posts created.",
	})

	follows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blog_follows_total",
		Help: "Follow graph changes by operation.",
	}, []string{"op"})
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"

	OpFollow   = "follow"
	OpUnfollow = "unfollow"
)

func ObserveRequest(route string, code int, d time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func CacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func PostCreated() {
	postsCreated.Inc()
}

func FollowChanged(op string) {
	follows.WithLabelValues(op).Inc()
}
