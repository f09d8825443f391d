package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	ProjectsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "projects_created_total",
			Help: "Total number of projects posted",
		},
	)

	BidEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_events_total",
			Help: "Bid lifecycle transitions",
		},
		[]string{"event"}, // submitted, accepted, rejected
	)

	PaymentEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_request_events_total",
			Help: "Payment request lifecycle transitions",
		},
		[]string{"event"}, // requested, approved, auto_approved, released, declined
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox publication attempts by result",
		},
		[]string{"routing_key", "result"}, // result: sent, retry, failed
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_events_pending",
			Help: "Pending outbox events seen by the last dispatcher poll",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Connected notification websocket clients",
		},
	)
)
