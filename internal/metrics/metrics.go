// Package metrics defines the Prometheus collectors of the exporter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Fetch outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeSoftMiss = "soft_miss"
	OutcomeError    = "error"
)

var (
	// Registry holds every collector below plus the Go runtime and process collectors.
	Registry = prometheus.NewRegistry()

	// FetchTotal counts endpoint calls by outcome.
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telematics_fetch_total",
			Help: "Total number of endpoint fetches by outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	// RowsWritten counts rows appended per dataset.
	RowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telematics_rows_written_total",
			Help: "Total number of rows appended to each dataset.",
		},
		[]string{"dataset"},
	)

	// DuplicatesRemoved counts rows dropped by deduplication.
	DuplicatesRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telematics_duplicates_removed_total",
			Help: "Total number of duplicate rows removed from each dataset.",
		},
		[]string{"dataset"},
	)

	// TimestampsConverted counts epoch fields rewritten to date-times.
	TimestampsConverted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telematics_timestamps_converted_total",
			Help: "Total number of epoch fields converted to date-times in each dataset.",
		},
		[]string{"dataset"},
	)

	// FleetSize is the number of vehicles seen by the last fleet listing.
	FleetSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "telematics_fleet_size",
			Help: "Number of vehicles returned by the last fleet listing.",
		},
	)

	// LiveCycleDuration observes how long one live polling cycle takes.
	LiveCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telematics_live_cycle_seconds",
			Help:    "Duration of live polling cycles.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		FetchTotal,
		RowsWritten,
		DuplicatesRemoved,
		TimestampsConverted,
		FleetSize,
		LiveCycleDuration,
	)
}
