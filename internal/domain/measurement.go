package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names one of the seven body measurements.
type Field string

const (
	FieldWeight Field = "weight"
	FieldHeight Field = "height"
	FieldChest  Field = "chest"
	FieldWaist  Field = "waist"
	FieldHips   Field = "hips"
	FieldArm    Field = "arm"
	FieldThigh  Field = "thigh"
)

// Fields lists every measurement field in display order.
var Fields = []Field{FieldWeight, FieldHeight, FieldChest, FieldWaist, FieldHips, FieldArm, FieldThigh}

// ParseField validates a field name.
func ParseField(raw string) (Field, error) {
	normalized := Field(strings.ToLower(strings.TrimSpace(raw)))
	for _, f := range Fields {
		if f == normalized {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown field %q", ErrInvalidValue, raw)
}

// Values carries the seven optional numeric-as-text measurements.
type Values struct {
	Weight string `json:"weight,omitempty"`
	Height string `json:"height,omitempty"`
	Chest  string `json:"chest,omitempty"`
	Waist  string `json:"waist,omitempty"`
	Hips   string `json:"hips,omitempty"`
	Arm    string `json:"arm,omitempty"`
	Thigh  string `json:"thigh,omitempty"`
}

// Get returns the raw text stored for the field.
func (v Values) Get(f Field) string {
	switch f {
	case FieldWeight:
		return v.Weight
	case FieldHeight:
		return v.Height
	case FieldChest:
		return v.Chest
	case FieldWaist:
		return v.Waist
	case FieldHips:
		return v.Hips
	case FieldArm:
		return v.Arm
	case FieldThigh:
		return v.Thigh
	}
	return ""
}

// Number parses the field, reporting false when it is absent or not numeric.
func (v Values) Number(f Field) (float64, bool) {
	raw := strings.TrimSpace(v.Get(f))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Has reports whether the field carries a usable value.
func (v Values) Has(f Field) bool {
	_, ok := v.Number(f)
	return ok
}

// IsEmpty reports whether all seven fields are blank.
func (v Values) IsEmpty() bool {
	for _, f := range Fields {
		if strings.TrimSpace(v.Get(f)) != "" {
			return false
		}
	}
	return true
}

// Normalize trims whitespace from every field.
func (v Values) Normalize() Values {
	return Values{
		Weight: strings.TrimSpace(v.Weight),
		Height: strings.TrimSpace(v.Height),
		Chest:  strings.TrimSpace(v.Chest),
		Waist:  strings.TrimSpace(v.Waist),
		Hips:   strings.TrimSpace(v.Hips),
		Arm:    strings.TrimSpace(v.Arm),
		Thigh:  strings.TrimSpace(v.Thigh),
	}
}

// Validate rejects all-empty input and values that are not non-negative numbers.
func (v Values) Validate() error {
	if v.IsEmpty() {
		return ErrEmptyMeasurement
	}
	for _, f := range Fields {
		raw := strings.TrimSpace(v.Get(f))
		if raw == "" {
			continue
		}
		n, ok := v.Number(f)
		if !ok {
			return fmt.Errorf("%w: %s must be a number", ErrInvalidValue, f)
		}
		if n < 0 {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidValue, f)
		}
	}
	return nil
}

// Measurement is one stored entry owned by a single user.
type Measurement struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	Values
}

// NewMeasurement is the payload accepted by Create.
type NewMeasurement struct {
	Date time.Time
	Values
}

// LegacyRecord is an entry persisted on the device before accounts existed.
type LegacyRecord struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Values
}

// Layouts without a zone hold wall-clock time (the datetime-local form value).
var localDateLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses raw with zone-less values read in time.Local.
func ParseDate(raw string) (time.Time, error) {
	return ParseDateIn(raw, time.Local)
}

// ParseDateIn accepts the date formats clients have historically sent.
// RFC 3339 values keep their offset; the others are wall-clock time in loc.
// The result is in UTC.
func ParseDateIn(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range localDateLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", ErrInvalidValue, raw)
}
