// Package metrics registers the Prometheus collectors of the detector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "viral"

// Feed request outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeTransport   = "transport_error"
	OutcomeHTTPError   = "http_error"
	OutcomeBadJSON     = "invalid_json"
	OutcomeAPIError    = "api_error"
	OutcomeEmpty       = "empty"
	OutcomeAuthFailed  = "auth_failed"
	OutcomeRateLimited = "rate_limited"
)

var (
	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Feed endpoint attempts by outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	FeedRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_request_duration_seconds",
			Help:      "Duration of feed endpoint attempts in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"endpoint"},
	)

	VideosClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_classified_total",
			Help:      "Videos classified, by country and verdict",
		},
		[]string{"country", "viral"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Failed store writes",
		},
		[]string{"operation"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Viral events handed to the broker",
		},
		[]string{"status"},
	)

	CollectionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_runs_total",
			Help:      "Completed collection runs by result",
		},
		[]string{"result"},
	)

	LastRunViral = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_viral_videos",
			Help:      "Unique viral videos found by the most recent run",
		},
	)
)
