package domain

import (
	"encoding/json"
	"time"
)

// ExportFile is a downloadable snapshot of a user's history.
type ExportFile struct {
	Name        string
	ContentType string
	Content     []byte
}

// Export serialises records as indented JSON named after the UTC calendar date.
func Export(records []Measurement, now time.Time) (*ExportFile, error) {
	if len(records) == 0 {
		return nil, ErrNothingToExport
	}
	content, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	return &ExportFile{
		Name:        "medidas-corporais-" + now.UTC().Format("2006-01-02") + ".json",
		ContentType: "application/json",
		Content:     content,
	}, nil
}
