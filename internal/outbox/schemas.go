package outbox

import "github.com/igorgomez/medidascorporais/internal/events"

const measurementCreatedSchema = `{
  "type": "object",
  "title": "MeasurementCreated",
  "properties": {
    "measurement_id": {"type": "string"},
    "user_id": {"type": "string"},
    "date": {"type": "string", "format": "date-time"},
    "values": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["measurement_id", "user_id", "date", "values", "created_at"],
  "additionalProperties": false
}`

const measurementDeletedSchema = `{
  "type": "object",
  "title": "MeasurementDeleted",
  "properties": {
    "measurement_id": {"type": "string"},
    "user_id": {"type": "string"},
    "deleted_at": {"type": "string", "format": "date-time"}
  },
  "required": ["measurement_id", "user_id", "deleted_at"],
  "additionalProperties": false
}`

// schemaCatalog maps event type to the JSON schema registered for it.
var schemaCatalog = map[string]string{
	events.TypeMeasurementCreated: measurementCreatedSchema,
	events.TypeMeasurementDeleted: measurementDeletedSchema,
}
