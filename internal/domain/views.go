package domain

import (
	"sort"
	"time"
)

// TimelineLimit caps how many points a timeline series carries.
const TimelineLimit = 10

// TimelinePoint is one chart point of a single field.
type TimelinePoint struct {
	Date  string    `json:"date"`
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Timeline keeps the records carrying field, sorts them oldest first and
// returns the most recent TimelineLimit as chart points.
func Timeline(records []Measurement, field Field) []TimelinePoint {
	filtered := make([]Measurement, 0, len(records))
	for _, m := range records {
		if m.Has(field) {
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Date.Before(filtered[j].Date)
	})
	if len(filtered) > TimelineLimit {
		filtered = filtered[len(filtered)-TimelineLimit:]
	}

	points := make([]TimelinePoint, 0, len(filtered))
	for _, m := range filtered {
		value, _ := m.Number(field)
		points = append(points, TimelinePoint{
			Date:  m.Date.Format("02/01"),
			At:    m.Date,
			Value: value,
		})
	}
	return points
}

// TimelineSeries builds the timeline of every field.
func TimelineSeries(records []Measurement) map[Field][]TimelinePoint {
	out := make(map[Field][]TimelinePoint, len(Fields))
	for _, f := range Fields {
		out[f] = Timeline(records, f)
	}
	return out
}

// RadarAxis is one spoke of the radar snapshot.
type RadarAxis struct {
	Field    Field   `json:"field"`
	Label    string  `json:"measurement"`
	Value    float64 `json:"value"`
	FullMark float64 `json:"fullMark"`
}

// radarScale fixes the axis maximum per field; it only scales the chart.
var radarScale = map[Field]float64{
	FieldWeight: 100,
	FieldHeight: 200,
	FieldChest:  120,
	FieldWaist:  120,
	FieldHips:   120,
	FieldArm:    50,
	FieldThigh:  80,
}

// Labels holds the human-readable name of each field.
var Labels = map[Field]string{
	FieldWeight: "Weight",
	FieldHeight: "Height",
	FieldChest:  "Chest",
	FieldWaist:  "Waist",
	FieldHips:   "Hips",
	FieldArm:    "Arm",
	FieldThigh:  "Thigh",
}

// Units holds the display unit of each field.
var Units = map[Field]string{
	FieldWeight: "kg",
	FieldHeight: "cm",
	FieldChest:  "cm",
	FieldWaist:  "cm",
	FieldHips:   "cm",
	FieldArm:    "cm",
	FieldThigh:  "cm",
}

// Radar takes records ordered most recent first and emits one axis per field
// populated on the first record.
func Radar(records []Measurement) []RadarAxis {
	if len(records) == 0 {
		return []RadarAxis{}
	}
	latest := records[0]
	axes := make([]RadarAxis, 0, len(Fields))
	for _, f := range Fields {
		value, ok := latest.Number(f)
		if !ok {
			continue
		}
		axes = append(axes, RadarAxis{
			Field:    f,
			Label:    Labels[f],
			Value:    value,
			FullMark: radarScale[f],
		})
	}
	return axes
}
