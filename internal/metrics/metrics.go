package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake metrics
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorgrid_messages_total",
			Help: "Total number of messages received per topic",
		},
		[]string{"topic"},
	)

	DecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorgrid_decode_failures_total",
			Help: "Total number of payloads that degraded to a raw-text envelope",
		},
	)

	RoutingMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensorgrid_routing_misses_total",
			Help: "Total number of messages dropped for lack of a topic handler",
		},
	)

	ClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorgrid_classified_total",
			Help: "Total number of envelopes processed per message kind",
		},
		[]string{"kind"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorgrid_queue_depth",
			Help: "Current depth of the envelope queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sensorgrid_queue_capacity",
			Help: "Maximum capacity of the envelope queue",
		},
	)

	// Store fan-out metrics
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensorgrid_store_writes_total",
			Help: "Total number of store writes by store and outcome",
		},
		[]string{"store", "status"},
	)

	StoreWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensorgrid_store_write_duration_seconds",
			Help:    "Duration of individual store writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store"},
	)
)
