package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchrelay_events_received_total",
		Help: "Total number of console events accepted by the ingress endpoint, labelled by action.",
	}, []string{"action"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchrelay_events_rejected_total",
		Help: "Total number of webhook bodies rejected, labelled by reason.",
	}, []string{"reason"})

	EventsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "switchrelay_events_evicted_total",
		Help: "Total number of stored events evicted because the history was full.",
	})

	HistoryCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "switchrelay_history_cleared_total",
		Help: "Total number of history clear requests.",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "switchrelay_subscribers",
		Help: "Number of currently registered live subscribers.",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchrelay_deliveries_total",
		Help: "Per-subscriber delivery attempts, labelled by outcome (ok, dropped).",
	}, []string{"outcome"})

	HooksQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "switchrelay_hooks_queued_total",
		Help: "Total number of events placed on the outbound hook queue.",
	})

	HooksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "switchrelay_hooks_dropped_total",
		Help: "Total number of events not run through hooks because the queue was full.",
	})

	HooksMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchrelay_hooks_matched_total",
		Help: "Total number of hook matches, labelled by hook ID.",
	}, []string{"hook_id"})

	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchrelay_actions_executed_total",
		Help: "Total number of hook actions executed, labelled by type and status.",
	}, []string{"action_type", "status"})

	HookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "switchrelay_hook_duration_ms",
		Help:    "Time spent running all matched hook actions for one event, in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	HookQueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "switchrelay_hook_queue_utilization_ratio",
		Help: "Current outbound hook queue utilization (0-1).",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "switchrelay_http_requests_total",
		Help: "HTTP requests served, labelled by route pattern and status code.",
	}, []string{"route", "code"})
)
