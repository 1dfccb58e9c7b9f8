package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	measurementsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medidas",
		Subsystem: "measurements",
		Name:      "created_total",
		Help:      "Number of measurements written to the store.",
	})
	measurementsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medidas",
		Subsystem: "measurements",
		Name:      "deleted_total",
		Help:      "Number of measurement deletions accepted by the store.",
	})
	measurementsMigrated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medidas",
		Subsystem: "measurements",
		Name:      "migrated_total",
		Help:      "Number of legacy local measurements moved into the store.",
	})
	operationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medidas",
		Subsystem: "measurements",
		Name:      "failures_total",
		Help:      "Number of store faults surfaced to callers, labeled by operation.",
	}, []string{"operation"})
	lastCreatedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "medidas",
		Subsystem: "persistence",
		Name:      "last_measurement_created_timestamp_seconds",
		Help:      "Unix timestamp of the most recent measurement written to the store.",
	})
)

func init() {
	prometheus.MustRegister(measurementsCreated, measurementsDeleted, measurementsMigrated, operationFailures, lastCreatedGauge)
}

// RecordCreated counts a write and advances the persistence watermark.
func RecordCreated(ts time.Time) {
	measurementsCreated.Inc()
	if ts.IsZero() {
		return
	}
	lastCreatedGauge.Set(float64(ts.Unix()))
}

// RecordDeleted counts a delete.
func RecordDeleted() {
	measurementsDeleted.Inc()
}

// RecordMigrated adds the number of legacy entries migrated in one run.
func RecordMigrated(n int) {
	if n <= 0 {
		return
	}
	measurementsMigrated.Add(float64(n))
}

// RecordFailure counts a failed façade operation.
func RecordFailure(operation string) {
	operationFailures.WithLabelValues(operation).Inc()
}

// FailureCounter exposes the failure counter for tests.
func FailureCounter(operation string) prometheus.Counter {
	return operationFailures.WithLabelValues(operation)
}
