// Package localstore is the device-local key-value store of the command-line
// app, kept in a single SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/igorgomez/medidascorporais/internal/domain"
)

// Keys used in the kv table.
const (
	KeyMeasurements       = "measurements"
	KeyMigrationDismissed = "migration-dismissed"
	KeyMigrationSkipped   = "migration-skipped"
	KeySessionToken       = "session-token"
)

// Store is a string key-value table.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise local store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value under key; ok is false when absent.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// Remove deletes key. Missing keys are ignored.
func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// LoadLegacy implements domain.LegacyStore. A missing key yields no records.
func (s *Store) LoadLegacy(ctx context.Context) ([]domain.LegacyRecord, error) {
	raw, ok, err := s.Get(ctx, KeyMeasurements)
	if err != nil || !ok {
		return nil, err
	}
	return decodeLegacy([]byte(raw))
}

// ClearLegacy implements domain.LegacyStore.
func (s *Store) ClearLegacy(ctx context.Context) error {
	return s.Remove(ctx, KeyMeasurements)
}

// SaveLegacy replaces the legacy array.
func (s *Store) SaveLegacy(ctx context.Context, records []domain.LegacyRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.Set(ctx, KeyMeasurements, string(data))
}

// ImportLegacy validates data as a legacy array and stores it verbatim.
func (s *Store) ImportLegacy(ctx context.Context, data []byte) (int, error) {
	records, err := decodeLegacy(data)
	if err != nil {
		return 0, err
	}
	return len(records), s.Set(ctx, KeyMeasurements, string(data))
}

// SkippedLegacy returns the entries earlier migrations could not store.
func (s *Store) SkippedLegacy(ctx context.Context) ([]domain.SkippedLegacy, error) {
	raw, ok, err := s.Get(ctx, KeyMigrationSkipped)
	if err != nil || !ok {
		return nil, err
	}
	var skipped []domain.SkippedLegacy
	if err := json.Unmarshal([]byte(raw), &skipped); err != nil {
		return nil, fmt.Errorf("decode skipped legacy measurements: %w", err)
	}
	return skipped, nil
}

// KeepSkippedLegacy appends entries a migration skipped so they are not lost
// when the legacy array is cleared.
func (s *Store) KeepSkippedLegacy(ctx context.Context, skipped []domain.SkippedLegacy) error {
	if len(skipped) == 0 {
		return nil
	}
	existing, err := s.SkippedLegacy(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(append(existing, skipped...))
	if err != nil {
		return err
	}
	return s.Set(ctx, KeyMigrationSkipped, string(data))
}

// DismissMigration records that the user declined the migration prompt.
func (s *Store) DismissMigration(ctx context.Context) error {
	return s.Set(ctx, KeyMigrationDismissed, "true")
}

// MigrationDismissed reports whether DismissMigration was called.
func (s *Store) MigrationDismissed(ctx context.Context) (bool, error) {
	_, ok, err := s.Get(ctx, KeyMigrationDismissed)
	return ok, err
}

// ShouldPromptMigration is true when legacy entries exist and the prompt was
// not dismissed. Unreadable legacy data never prompts.
func (s *Store) ShouldPromptMigration(ctx context.Context) (bool, error) {
	dismissed, err := s.MigrationDismissed(ctx)
	if err != nil || dismissed {
		return false, err
	}
	raw, ok, err := s.Get(ctx, KeyMeasurements)
	if err != nil || !ok {
		return false, err
	}
	records, err := decodeLegacy([]byte(raw))
	if err != nil {
		return false, nil
	}
	return len(records) > 0, nil
}

// SessionToken returns the persisted bearer token, if any.
func (s *Store) SessionToken(ctx context.Context) (string, error) {
	token, _, err := s.Get(ctx, KeySessionToken)
	return token, err
}

// SaveSessionToken persists the bearer token.
func (s *Store) SaveSessionToken(ctx context.Context, token string) error {
	return s.Set(ctx, KeySessionToken, token)
}

// ClearSessionToken forgets the bearer token.
func (s *Store) ClearSessionToken(ctx context.Context) error {
	return s.Remove(ctx, KeySessionToken)
}

type legacyEntry struct {
	ID   json.RawMessage `json:"id"`
	Date string          `json:"date"`
	domain.Values
}

// decodeLegacy accepts ids written as strings or numbers.
func decodeLegacy(data []byte) ([]domain.LegacyRecord, error) {
	var entries []legacyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode legacy measurements: %w", err)
	}
	records := make([]domain.LegacyRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, domain.LegacyRecord{ID: legacyID(e.ID), Date: e.Date, Values: e.Values})
	}
	return records, nil
}

func legacyID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if n, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return string(raw)
}
