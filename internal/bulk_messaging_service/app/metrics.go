package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchRunsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulk_messaging",
			Name:      "runs_total",
			Help:      "Total dispatch runs by outcome.",
		},
		[]string{"outcome"}, // completed, rejected
	)

	dispatchRunDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bulk_messaging",
			Name:      "run_duration_seconds",
			Help:      "Wall time of completed dispatch runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	deliveryAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulk_messaging",
			Name:      "delivery_attempts_total",
			Help:      "Delivery attempts by status.",
		},
		[]string{"status", "dry_run"},
	)

	gatewayRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bulk_messaging",
			Name:      "gateway_request_duration_seconds",
			Help:      "Duration of gateway sends including retries.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider_name"},
	)

	pacingWaitHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bulk_messaging",
			Name:      "pacing_wait_seconds",
			Help:      "Time a worker waited for its send turn.",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	deliveryLogFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bulk_messaging",
			Name:      "delivery_log_failures_total",
			Help:      "Delivery attempts that could not be written to the message history.",
		},
	)

	configResolutionFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bulk_messaging",
			Name:      "config_resolution_failures_total",
			Help:      "Gateway configuration resolution failures by missing field.",
		},
		[]string{"field"},
	)
)
