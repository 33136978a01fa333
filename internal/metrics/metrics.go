package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckRunsTotal counts subscription check runs by result (ok, failed, skipped).
	CheckRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmdesk",
		Subsystem: "checker",
		Name:      "runs_total",
		Help:      "Total subscription check runs by result.",
	}, []string{"result"})

	// CheckRunDuration tracks how long a full check run takes.
	CheckRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crmdesk",
		Subsystem: "checker",
		Name:      "run_duration_seconds",
		Help:      "Subscription check run duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// ActionsTotal counts per-user actions by action (suspend, notify) and
	// outcome (ok, error).
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmdesk",
		Subsystem: "checker",
		Name:      "actions_total",
		Help:      "Per-user actions taken by the subscription checker.",
	}, []string{"action", "outcome"})

	// LastRunUsers holds the category sizes of the most recent run.
	LastRunUsers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "crmdesk",
		Subsystem: "checker",
		Name:      "last_run_users",
		Help:      "Users per category in the most recent check run.",
	}, []string{"category"})

	// LastRunTimestamp is the unix time the most recent run finished.
	LastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "crmdesk",
		Subsystem: "checker",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the most recent check run finished.",
	})

	// WebhookEventsTotal counts Stripe webhook events by type and status.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crmdesk",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Stripe webhook events by event type and HTTP status.",
	}, []string{"event_type", "status"})
)
