package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total number of bookings created",
	})

	BookingsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookings_confirmed_total",
		Help: "Total number of bookings confirmed by a completed payment",
	})

	PaymentsInitiatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Total number of payment attempts started",
	}, []string{"method"})

	PaymentInitiationFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_initiation_failed_total",
		Help: "Total number of payment attempts the provider rejected",
	}, []string{"method"})

	ReconcileOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_outcomes_total",
		Help: "Provider callbacks reconciled, by outcome",
	}, []string{"method", "outcome"})

	ReconcileDuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_duplicates_total",
		Help: "Provider callbacks that found the payment already final",
	}, []string{"method"})

	ProviderRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_request_latency_seconds",
		Help:    "Latency of outbound payment provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	EventsOverbookedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_overbooked_total",
		Help: "Confirmations that took an event past its participant limit",
	})

	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_scheduler_ticks_total",
		Help: "Total number of lifecycle recompute passes run",
	})

	SchedulerSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_scheduler_skipped_total",
		Help: "Lifecycle recompute passes skipped",
	}, []string{"reason"})

	EventStatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "event_status_updates_total",
		Help: "Event status transitions written by the lifecycle scheduler",
	}, []string{"to"})

	EventStatusFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_status_failures_total",
		Help: "Events the lifecycle scheduler failed to update",
	})

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
