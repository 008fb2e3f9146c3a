package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Total number of completed sync runs by terminal status",
	}, []string{"status"})

	SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Help:    "Duration of sync runs from start to finalization",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	ProductsRepricedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_repriced_total",
		Help: "Total number of products whose price was corrected",
	})

	ProductsPendingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_pending_total",
		Help: "Total number of price updates that failed and are pending",
	})

	ProductsUnlistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_unlisted_total",
		Help: "Total number of feed records with no matching listing",
	})

	FeedRecordsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_records_fetched_total",
		Help: "Total number of valid records fetched from the pricing feed",
	})

	FeedRecordsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_records_dropped_total",
		Help: "Total number of feed records dropped by validation",
	})

	FeedFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_fetch_latency_seconds",
		Help:    "Latency of full feed fetches",
		Buckets: prometheus.DefBuckets,
	})

	PlatformRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platform_requests_total",
		Help: "Total number of platform API requests",
	}, []string{"platform", "operation", "result"})

	PlatformRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platform_request_latency_seconds",
		Help:    "Latency of platform API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform", "operation"})

	SchedulerRunsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_skipped_total",
		Help: "Total number of store evaluations that did not launch a run",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
