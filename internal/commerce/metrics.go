// Package commerce – Prometheus instrumentation
//
// Collectors for outbound backend traffic. Labels are bounded: "op" is the
// fixed set of client operations, "status" is the numeric HTTP status (or
// "error" when no response was received). All collectors are safe for
// concurrent use.
package commerce

import "github.com/prometheus/client_golang/prometheus"

var (
	// backendReqs counts outbound data calls by operation and status.
	backendReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commerce_requests_total",
			Help: "Total number of commerce backend requests.",
		},
		[]string{"op", "status"},
	)

	// backendLat records call duration in seconds by operation.
	backendLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commerce_request_duration_seconds",
			Help:    "Duration of commerce backend requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// tokenRefreshes counts client-credentials exchanges (not cache hits).
	tokenRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "commerce_token_refreshes_total",
			Help: "Total number of bearer token exchanges performed.",
		},
	)

	// imageCacheHits / imageDownloads track product photography caching.
	imageCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "commerce_image_cache_hits_total",
			Help: "Image lookups served from the local cache directory.",
		},
	)
	imageDownloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "commerce_image_downloads_total",
			Help: "Images fetched from the backend and written to disk.",
		},
	)
)

func init() {
	prometheus.MustRegister(backendReqs, backendLat, tokenRefreshes, imageCacheHits, imageDownloads)
}
