package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "medidas"

// Publishing side.
var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "outbox",
		Name: "published_total",
		Help: "Measurement events written to Kafka.",
	})
	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "outbox",
		Name: "publish_failures_total",
		Help: "Measurement events whose batch failed to publish.",
	})
	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Subsystem: "outbox",
		Name:    "batch_seconds",
		Help:    "Claim to mark-published latency of one batch.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})
	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "outbox",
		Name: "dead_lettered_total",
		Help: "Measurement events parked in outbox_dlq.",
	}, []string{"topic"})
)

// Dead-letter side.
var (
	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "dlq",
		Name: "requeued_total",
		Help: "Dead-lettered events copied back into the outbox.",
	}, []string{"topic", "event_type"})
	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "dlq",
		Name: "quarantined_total",
		Help: "Dead-lettered events given up on after the last retry.",
	}, []string{"topic", "event_type"})
	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Subsystem: "dlq",
		Name: "retries_scheduled_total",
		Help: "Backoff retries scheduled for dead-lettered events.",
	}, []string{"topic", "event_type"})
	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Subsystem: "dlq",
		Name: "backlog",
		Help: "Dead-lettered events not yet quarantined.",
	})
)

func init() {
	prometheus.MustRegister(
		deliveredCounter, failedCounter, batchDuration, dlqCounter,
		dlqRequeuedCounter, dlqQuarantinedCounter, dlqRetryCounter, dlqBacklogGauge,
	)
}

// updateBacklogGauge is best effort; a failed count leaves the last value.
func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var backlog int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&backlog)
	if err == nil {
		dlqBacklogGauge.Set(float64(backlog))
	}
}
