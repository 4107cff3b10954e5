package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingress metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convrelay_ingress_events_total",
			Help: "Total number of events received by the ingress API",
		},
		[]string{"status"},
	)

	EnqueueErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "convrelay_ingress_enqueue_errors_total",
			Help: "Total number of failed queue publishes",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convrelay_ingress_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"client"},
	)

	// Geo enrichment metrics
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convrelay_geo_lookups_total",
			Help: "Total geo enrichment attempts by outcome",
		},
		[]string{"outcome"},
	)

	GeoLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "convrelay_geo_lookup_duration_seconds",
			Help:    "Duration of geo provider lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Persistence metrics
	PersistOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convrelay_persist_total",
			Help: "Total persistence attempts by outcome (inserted, duplicate, error)",
		},
		[]string{"outcome"},
	)

	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "convrelay_persist_duration_seconds",
			Help:    "Duration of event inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Forwarding metrics
	ForwardOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convrelay_forward_total",
			Help: "Total forwarding attempts by outcome (sent, skipped_unconfigured, skipped_stale, error)",
		},
		[]string{"outcome"},
	)

	ForwardDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "convrelay_forward_duration_seconds",
			Help:    "Duration of Conversions API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Worker metrics
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convrelay_worker_jobs_total",
			Help: "Total jobs consumed by result (ok, malformed, store_error, forward_error)",
		},
		[]string{"result"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "convrelay_worker_job_duration_seconds",
			Help:    "End-to-end pipeline duration per job in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
