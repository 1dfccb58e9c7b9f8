// Package events defines the measurement event payloads published through the outbox.
package events

import "time"

// Event type names carried in outbox rows and Kafka headers.
const (
	TypeMeasurementCreated = "measurement.created"
	TypeMeasurementDeleted = "measurement.deleted"
)

// MeasurementCreated is emitted when a measurement is written.
type MeasurementCreated struct {
	MeasurementID string            `json:"measurement_id"`
	UserID        string            `json:"user_id"`
	Date          time.Time         `json:"date"`
	Values        map[string]string `json:"values"`
	CreatedAt     time.Time         `json:"created_at"`
}

// MeasurementDeleted is emitted when a measurement is removed.
type MeasurementDeleted struct {
	MeasurementID string    `json:"measurement_id"`
	UserID        string    `json:"user_id"`
	DeletedAt     time.Time `json:"deleted_at"`
}
