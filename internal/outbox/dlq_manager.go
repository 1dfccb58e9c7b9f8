package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DLQManager replays dead-lettered events back into the outbox and
// quarantines the ones that keep failing.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewDLQManager constructs a DLQManager. Non-positive settings fall back to
// five retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// RunOnce processes one batch of due entries and returns how many were requeued.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, user_id::text, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
                    FROM outbox_dlq
                   WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                   ORDER BY created_at
                   LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	entries := make([]dlqEntry, 0, batchSize)
	for rows.Next() {
		entry, scanErr := scanDLQEntry(rows)
		if scanErr != nil {
			err = errors.Join(err, scanErr)
			continue
		}
		entries = append(entries, entry)
	}
	rows.Close()
	if rowsErr := rows.Err(); rowsErr != nil {
		err = errors.Join(err, rowsErr)
	}

	requeued := 0
	for _, entry := range entries {
		ok, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, procErr)
			continue
		}
		if ok {
			requeued++
		}
	}

	updateBacklogGauge(ctx, m.pool)
	return requeued, err
}

func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (bool, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if entry.RetryCount >= m.maxRetries {
		if _, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, "retry limit reached", entry.ID); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
		m.logger.Warn("dlq entry quarantined", zap.Int64("dlq_id", entry.ID), zap.String("event_type", entry.EventType))
		return false, nil
	}

	if insertErr := requeueOutbox(ctx, tx, entry); insertErr != nil {
		delay := backoffDelay(m.baseDelay, entry.RetryCount+1)
		if _, err := tx.Exec(ctx,
			`UPDATE outbox_dlq
               SET retry_count = retry_count + 1,
                   last_attempt_at = NOW(),
                   next_retry_at = NOW() + $1::interval,
                   reason = $2
             WHERE dlq_id = $3`,
			delay, insertErr.Error(), entry.ID,
		); err != nil {
			return false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		dlqRetryCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
		return false, nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
	return true, nil
}

// backoffDelay doubles base for every attempt and caps at one hour.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * base
	if delay > time.Hour {
		delay = time.Hour
	}
	return delay
}

func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.UserID, entry.AggregateType, entry.AggregateID, entry.EventType,
		entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload,
	)
	return err
}

type dlqEntry struct {
	ID            int64
	UserID        string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

func scanDLQEntry(rows pgx.Rows) (dlqEntry, error) {
	var entry dlqEntry
	err := rows.Scan(&entry.ID, &entry.UserID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload,
		&entry.Reason, &entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount)
	return entry, err
}
