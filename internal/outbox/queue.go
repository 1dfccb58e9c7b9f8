package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGQueue is the Postgres implementation of Queue.
type PGQueue struct {
	pool *pgxpool.Pool
}

// NewPGQueue constructs a queue backed by the provided pool.
func NewPGQueue(pool *pgxpool.Pool) *PGQueue {
	return &PGQueue{pool: pool}
}

// Claim locks up to limit unpublished rows, stamps them claimed and returns them.
func (q *PGQueue) Claim(ctx context.Context, limit int) (messages []Message, err error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx, `SELECT event_id, user_id::text, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.EventID, &msg.UserID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.SchemaSubject, &msg.PartitionKey, &msg.Payload); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
		ids = append(ids, msg.EventID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, tx.Rollback(ctx)
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkPublished stamps the rows as delivered.
func (q *PGQueue) MarkPublished(ctx context.Context, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := q.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs)
	return err
}

// DeadLetter records a failed outbox message alongside the supplied reason.
func (q *PGQueue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
		msg.UserID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason, msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey,
	)
	return err
}
