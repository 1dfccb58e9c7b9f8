package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventLogHandler appends consumed events to measurement_event_log.
type EventLogHandler struct {
	pool *pgxpool.Pool
}

// NewEventLogHandler constructs a handler backed by pool.
func NewEventLogHandler(pool *pgxpool.Pool) *EventLogHandler {
	return &EventLogHandler{pool: pool}
}

// Handle stores the event.
func (h *EventLogHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO measurement_event_log (event_type, user_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.EventType, msg.UserID, msg.SchemaID, msg.SchemaSubject,
		msg.Topic, msg.Partition, msg.Offset, msg.Payload, msg.Timestamp,
	)
	return err
}
