package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS plugin_records (
	plugin_id  TEXT PRIMARY KEY,
	descriptor TEXT NOT NULL,
	state      TEXT NOT NULL,
	metrics    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLiteStore persists plugin records in a local SQLite database. Each record
// column holds the JSON encoding of its part, which keeps the schema stable
// as the in-memory types grow.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite database at path. Use
// ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save upserts a record.
func (s *SQLiteStore) Save(ctx context.Context, id string, rec Record) error {
	desc, err := json.Marshal(rec.Descriptor)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor %q: %w", id, err)
	}
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to encode state %q: %w", id, err)
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics %q: %w", id, err)
	}

	query := `
		INSERT INTO plugin_records (plugin_id, descriptor, state, metrics, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plugin_id) DO UPDATE SET
			descriptor = excluded.descriptor,
			state      = excluded.state,
			metrics    = excluded.metrics,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, id, string(desc), string(state), string(metrics), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save record %q: %w", id, err)
	}
	return nil
}

// Load returns all persisted records.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT plugin_id, descriptor, state, metrics FROM plugin_records`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var id, desc, state, metrics string
		if err := rows.Scan(&id, &desc, &state, &metrics); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		var rec Record
		if err := json.Unmarshal([]byte(desc), &rec.Descriptor); err != nil {
			return nil, fmt.Errorf("failed to decode descriptor %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(state), &rec.State); err != nil {
			return nil, fmt.Errorf("failed to decode state %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(metrics), &rec.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics %q: %w", id, err)
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Delete removes a record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plugin_records WHERE plugin_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete record %q: %w", id, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
