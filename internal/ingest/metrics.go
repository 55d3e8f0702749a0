package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsAccepted counts transfer events accepted by the rate limiter.
	EventsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notescan_ingest_events_accepted_total",
			Help: "Total number of live transfer events accepted",
		},
		[]string{"chain", "strategy"},
	)

	// EventsSkipped counts transfer events dropped by the rate limiter.
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notescan_ingest_events_skipped_total",
			Help: "Total number of live transfer events dropped by rate limiting",
		},
		[]string{"chain", "strategy"},
	)

	// EventsDiscarded counts matched events whose detail resolution failed.
	EventsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notescan_ingest_events_discarded_total",
			Help: "Total number of matched events discarded after enrichment failure",
		},
		[]string{"chain"},
	)

	// StreamReconnects counts streaming endpoint rotations.
	StreamReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notescan_stream_reconnects_total",
			Help: "Total number of streaming endpoint reconnect attempts",
		},
		[]string{"chain"},
	)

	// LastProcessedBlock tracks the polling cursor per chain.
	LastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notescan_ingest_last_processed_block",
			Help: "Last fully processed block of the polling strategy",
		},
		[]string{"chain"},
	)
)
