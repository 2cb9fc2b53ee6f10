package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentIntentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intents_created_total",
		Help: "Total number of payment intents created",
	})

	PaymentIntentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intents_rejected_total",
		Help: "Total number of rejected payment intents",
	}, []string{"reason"})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of payments reconciled to completed",
	})

	PaymentsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of payments reconciled to failed",
	})

	PaymentsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_expired_total",
		Help: "Total number of pending payments expired by the sweeper",
	})

	DuplicateCallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_duplicate_callbacks_total",
		Help: "Total number of callbacks or polls that hit an already-terminal payment",
	})

	CallbacksIgnoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_callbacks_ignored_total",
		Help: "Total number of callbacks that matched no payment",
	})

	TicketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Total number of ticket rows issued",
	})

	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_reconcile_latency_seconds",
		Help:    "Latency of the payment reconciliation transaction",
		Buckets: prometheus.DefBuckets,
	})

	GatewayRequestsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_failed_total",
		Help: "Total number of failed gateway requests",
	}, []string{"op"})

	RSVPActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsvp_actions_total",
		Help: "Total number of RSVP actions processed",
	}, []string{"action"})

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
