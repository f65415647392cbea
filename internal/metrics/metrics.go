// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relationship_custody"

var (
	// ChainAppendsTotal counts links appended per chain and outcome.
	ChainAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_appends_total",
			Help:      "Hash chain appends by chain and outcome",
		},
		[]string{"chain", "status"}, // chain: custody, audit; status: ok, fork, error
	)

	// ChainAppendDuration measures lock wait plus append.
	ChainAppendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_append_duration_seconds",
			Help:      "Time to serialize and append a chain link",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"chain"},
	)

	// VerificationsTotal counts public proof lookups.
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Custody proof verifications by result",
		},
		[]string{"result"}, // valid, invalid, malformed, unknown
	)

	// ChainIntegrityFailures counts broken chains found by the watcher.
	ChainIntegrityFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_integrity_failures_total",
			Help:      "Chains that failed a full integrity walk",
		},
		[]string{"chain"},
	)

	// ChainLastVerified records when each chain last passed a full walk.
	ChainLastVerified = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_last_verified_timestamp",
			Help:      "Unix time of the last successful integrity walk",
		},
		[]string{"chain"},
	)

	// TrustEventsTotal counts incremental trust events by kind and outcome.
	TrustEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trust_events_total",
			Help:      "Incremental trust events by kind and outcome",
		},
		[]string{"kind", "status"}, // status: applied, duplicate, noop
	)

	// TrustRecalculationsTotal counts normalized recomputations.
	TrustRecalculationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trust_recalculations_total",
			Help:      "Normalized trust score recomputations",
		},
	)

	// PayoutsCreatedTotal counts persisted payout rows by type.
	PayoutsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_created_total",
			Help:      "Payout line items created by payout type",
		},
		[]string{"payout_type"},
	)

	// DealsClosedTotal counts deal close attempts by outcome.
	DealsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deals_closed_total",
			Help:      "Deal closes by outcome",
		},
		[]string{"status"}, // paid, resumed, already_closed, no_value, error
	)

	// EventsPublishedTotal counts domain events sent to Kafka.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published by type and outcome",
		},
		[]string{"event_type", "status"},
	)

	// HTTPRequestDuration measures API latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)
)
