package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched tracks listing pages successfully fetched, per site.
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_pages_fetched_total",
		Help: "The total number of listing pages fetched per site.",
	}, []string{"site"})
	// RowsNormalized tracks listing rows normalized into notices.
	RowsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_rows_normalized_total",
		Help: "The total number of listing rows normalized per site.",
	}, []string{"site"})
	// Retries tracks attempts beyond the first across all wrapped calls.
	Retries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_retries_total",
		Help: "The total number of retry attempts scheduled by the retry wrapper.",
	})
	// DetailFailures tracks per-record detail fetches that gave up.
	DetailFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_detail_failures_total",
		Help: "The total number of detail fetches that failed after retries.",
	}, []string{"site"})
	// CrawlsCompleted tracks crawl outcomes.
	CrawlsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_crawls_total",
		Help: "The total number of crawls by site and outcome.",
	}, []string{"site", "outcome"})
	// CrawlDuration observes wall-clock duration per crawl.
	CrawlDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_crawl_duration_seconds",
		Help:    "Wall-clock duration of a crawl invocation.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	}, []string{"site"})
)
