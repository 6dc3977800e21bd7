package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solwatch",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "solwatch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "solwatch",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Refresh metrics ────────────────────────────────────────────────────

var (
	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solwatch",
		Subsystem: "refresh",
		Name:      "total",
		Help:      "Total refresh cycles by outcome.",
	}, []string{"status"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "solwatch",
		Subsystem: "refresh",
		Name:      "duration_seconds",
		Help:      "Duration of a full refresh cycle in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	LastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "solwatch",
		Subsystem: "refresh",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful refresh.",
	})
)

// ── Chain metrics ──────────────────────────────────────────────────────

var (
	SlotHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "solwatch",
		Subsystem: "chain",
		Name:      "slot_height",
		Help:      "Slot height of the latest snapshot.",
	})

	WalletBalanceLamports = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "solwatch",
		Subsystem: "chain",
		Name:      "wallet_balance_lamports",
		Help:      "Wallet balance in lamports from the latest snapshot.",
	}, []string{"wallet"})
)

// ── Alert delivery metrics ─────────────────────────────────────────────

var (
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solwatch",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Total alerts successfully delivered.",
	}, []string{"kind"})

	AlertsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solwatch",
		Subsystem: "alerts",
		Name:      "failed_total",
		Help:      "Total alert delivery failures.",
	}, []string{"kind"})

	AlertsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "solwatch",
		Subsystem: "alerts",
		Name:      "suppressed_total",
		Help:      "Total alerts suppressed by cooldown or deduplication.",
	}, []string{"kind"})
)
