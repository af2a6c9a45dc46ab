// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	SignaturesAccepted prometheus.Counter
	SignaturesRejected *prometheus.CounterVec
	BatchesFlushed     prometheus.Counter
	TransactionsStored *prometheus.CounterVec
	BatchFlushDuration prometheus.Histogram
	PendingSignatures  prometheus.Gauge

	// Holdings cache metrics
	TrackedMints   prometheus.Gauge
	TrackedWallets prometheus.Gauge
	CleanupsRun    prometheus.Counter
	MintsEvicted   prometheus.Counter

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	ProviderBackoffs *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Refresh metrics
	WalletsChecked  *prometheus.CounterVec
	HoldingsUpdated *prometheus.CounterVec

	// Feed metrics
	EventsPublished prometheus.Counter
	FeedSubscribers prometheus.Gauge
	SlowSubscribers prometheus.Counter

	// Health metrics
	LastSuccessfulFlush prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "mintwatch"
	}

	return &Metrics{
		// Ingestion metrics
		SignaturesAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "signatures_accepted_total",
			Help:      "Total number of signatures accepted into the pending batch",
		}),
		SignaturesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "signatures_rejected_total",
			Help:      "Total number of rejected signatures by reason",
		}, []string{"reason"}),
		BatchesFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batches_flushed_total",
			Help:      "Total number of pending-batch flushes",
		}),
		TransactionsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "transactions_stored_total",
			Help:      "Total number of persisted transaction records by status",
		}, []string{"status"}),
		BatchFlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "batch_flush_duration_seconds",
			Help:      "Duration of one pending-batch flush in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		PendingSignatures: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "pending_signatures",
			Help:      "Current number of signatures waiting for the next flush",
		}),

		// Holdings cache metrics
		TrackedMints: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "tracked_mints",
			Help:      "Current number of mint cards in the cache",
		}),
		TrackedWallets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "tracked_wallets",
			Help:      "Current number of wallet entries across all cards",
		}),
		CleanupsRun: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "cleanups_total",
			Help:      "Total number of stale-mint cleanup sweeps",
		}),
		MintsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "holdings",
			Name:      "mints_evicted_total",
			Help:      "Total number of mint cards removed by cleanup",
		}),

		// Provider metrics
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of provider API calls by provider and operation",
		}, []string{"provider", "operation"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Total number of provider API errors by provider and reason",
		}, []string{"provider", "reason"}),
		ProviderBackoffs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "backoffs_total",
			Help:      "Total number of rate-limit backoff windows opened per provider",
		}, []string{"provider"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Provider API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),

		// Refresh metrics
		WalletsChecked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "wallets_checked_total",
			Help:      "Total number of wallet balances checked by provider",
		}, []string{"provider"}),
		HoldingsUpdated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "holdings_updated_total",
			Help:      "Total number of wallet balance changes applied by provider",
		}, []string{"provider"}),

		// Feed metrics
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_published_total",
			Help:      "Total number of events published to the feed buffer",
		}),
		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Current number of connected feed subscribers",
		}),
		SlowSubscribers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "slow_subscribers_dropped_total",
			Help:      "Total number of subscribers dropped for not keeping up",
		}),

		// Health metrics
		LastSuccessfulFlush: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_flush_timestamp",
			Help:      "Unix timestamp of last successful batch flush",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")
