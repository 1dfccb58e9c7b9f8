package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/events"
)

// Repository provides Postgres-backed persistence for measurements and their outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const measurementColumns = `measurement_id::text, user_id::text, date, COALESCE(weight,''), COALESCE(height,''), COALESCE(chest,''),
        COALESCE(waist,''), COALESCE(hips,''), COALESCE(arm,''), COALESCE(thigh,''), created_at`

// List returns every measurement of the user ordered by date descending.
func (r *Repository) List(ctx context.Context, userID string) ([]domain.Measurement, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := scopeToUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+measurementColumns+`
        FROM measurements WHERE user_id=$1
        ORDER BY date DESC, measurement_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Measurement, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// Create inserts the measurement and its outbox event in one transaction. A
// repeated idempotency key returns the row written the first time.
func (r *Repository) Create(ctx context.Context, userID string, input domain.NewMeasurement, idempotencyKey string) (m domain.Measurement, replay bool, err error) {
	if _, err = uuid.Parse(userID); err != nil {
		return domain.Measurement{}, false, fmt.Errorf("invalid user id: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Measurement{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = scopeToUser(ctx, tx, userID); err != nil {
		return domain.Measurement{}, false, err
	}

	m = domain.Measurement{
		ID:     uuid.NewString(),
		UserID: userID,
		Date:   input.Date.UTC(),
		Values: input.Values,
	}

	const insert = `INSERT INTO measurements (measurement_id, user_id, date, weight, height, chest, waist, hips, arm, thigh, idempotency_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT ON CONSTRAINT measurements_idempotency DO NOTHING
        RETURNING created_at`

	err = tx.QueryRow(ctx, insert,
		m.ID,
		userID,
		m.Date,
		nullIfEmpty(m.Weight),
		nullIfEmpty(m.Height),
		nullIfEmpty(m.Chest),
		nullIfEmpty(m.Waist),
		nullIfEmpty(m.Hips),
		nullIfEmpty(m.Arm),
		nullIfEmpty(m.Thigh),
		nullIfEmpty(idempotencyKey),
	).Scan(&m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		row := tx.QueryRow(ctx, `SELECT `+measurementColumns+`
            FROM measurements WHERE user_id=$1 AND idempotency_key=$2`, userID, idempotencyKey)
		if m, err = scanMeasurement(row); err != nil {
			return domain.Measurement{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return domain.Measurement{}, false, err
		}
		return m, true, nil
	}
	if err != nil {
		return domain.Measurement{}, false, err
	}

	if err = insertOutbox(ctx, tx, userID, m.ID, events.TypeMeasurementCreated, events.MeasurementCreated{
		MeasurementID: m.ID,
		UserID:        userID,
		Date:          m.Date,
		Values:        valuesMap(m.Values),
		CreatedAt:     m.CreatedAt,
	}); err != nil {
		return domain.Measurement{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return domain.Measurement{}, false, err
	}
	return m, false, nil
}

// Delete removes the measurement and records a deletion event when a row was removed.
func (r *Repository) Delete(ctx context.Context, userID, measurementID string) (err error) {
	if _, err = uuid.Parse(userID); err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	if _, parseErr := uuid.Parse(measurementID); parseErr != nil {
		// Ids the store could never have assigned are already absent.
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = scopeToUser(ctx, tx, userID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM measurements WHERE user_id=$1 AND measurement_id=$2`, userID, measurementID)
	if err != nil {
		return err
	}

	if tag.RowsAffected() > 0 {
		if err = insertOutbox(ctx, tx, userID, measurementID, events.TypeMeasurementDeleted, events.MeasurementDeleted{
			MeasurementID: measurementID,
			UserID:        userID,
			DeletedAt:     time.Now().UTC(),
		}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func scopeToUser(ctx context.Context, tx pgx.Tx, userID string) error {
	_, err := tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID)
	return err
}

func scanMeasurement(row pgx.Row) (domain.Measurement, error) {
	var m domain.Measurement
	err := row.Scan(&m.ID, &m.UserID, &m.Date, &m.Weight, &m.Height, &m.Chest, &m.Waist, &m.Hips, &m.Arm, &m.Thigh, &m.CreatedAt)
	if err != nil {
		return domain.Measurement{}, err
	}
	m.Date = m.Date.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, userID, aggregateID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		userID,
		"measurement",
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	return err
}

func valuesMap(v domain.Values) map[string]string {
	out := make(map[string]string, len(domain.Fields))
	for _, f := range domain.Fields {
		if raw := v.Get(f); raw != "" {
			out[string(f)] = raw
		}
	}
	return out
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeMeasurementCreated: {
		Topic:         "measurement_events",
		SchemaSubject: "measurement_events-value",
	},
	events.TypeMeasurementDeleted: {
		Topic:         "measurement_events",
		SchemaSubject: "measurement_deleted-value",
	},
}
