package database

import (
	"database/sql"
	"fmt"
	"time"
)

// MetadataRepository handles the RunMetadata singleton in the state db.
type MetadataRepository struct {
	db *StateDB
}

func NewMetadataRepository(db *StateDB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Get returns the stored run metadata, or nil before the first run.
func (r *MetadataRepository) Get() (*RunMetadata, error) {
	var meta RunMetadata
	var timestamp string

	err := r.db.QueryRow(`
		SELECT schema_version, timestamp, host FROM run_metadata WHERE id = 1
	`).Scan(&meta.SchemaVersion, &timestamp, &meta.Host)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run metadata: %w", err)
	}

	meta.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run metadata timestamp: %w", err)
	}

	return &meta, nil
}

// Upsert replaces the singleton entirely. The timestamp is normalized to
// millisecond precision before it is written.
func (r *MetadataRepository) Upsert(meta RunMetadata) error {
	timestamp := meta.Timestamp.UTC().Truncate(time.Millisecond)

	_, err := r.db.Exec(`
		INSERT INTO run_metadata (id, schema_version, timestamp, host)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			schema_version = excluded.schema_version,
			timestamp = excluded.timestamp,
			host = excluded.host
	`, meta.SchemaVersion, timestamp.Format(time.RFC3339Nano), meta.Host)
	if err != nil {
		return fmt.Errorf("failed to upsert run metadata: %w", err)
	}

	return nil
}
