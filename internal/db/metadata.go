//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-dwload/internal/logging"
	"github.com/pgEdge/pgedge-dwload/pkg/version"
)

const metadataTable = "warehouse_metadata"

// Metadata keys.
const (
	MetaApp           = "app"
	MetaVersion       = "version"
	MetaInitializedAt = "initialized_at"
	MetaLastRunID     = "last_run_id"
	MetaLastRunStatus = "last_run_status"
	MetaLastRunAt     = "last_run_at"
)

// createMetadataTableSQL creates the metadata table if it doesn't exist.
const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS warehouse_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// SaveMetadata records initialization metadata.
func SaveMetadata(ctx context.Context, db DB) error {
	metadata := map[string]string{
		MetaApp:           "pgedge-dwload",
		MetaVersion:       version.Short(),
		MetaInitializedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := setMetadata(ctx, db, metadata); err != nil {
		return err
	}

	logging.Debug().
		Str("version", version.Short()).
		Msg("Saved metadata")

	return nil
}

// SaveRunMetadata records the id, status and finish time of a pipeline run.
func SaveRunMetadata(ctx context.Context, db DB, runID, status string, at time.Time) error {
	return setMetadata(ctx, db, map[string]string{
		MetaLastRunID:     runID,
		MetaLastRunStatus: status,
		MetaLastRunAt:     at.UTC().Format(time.RFC3339),
	})
}

func setMetadata(ctx context.Context, db DB, metadata map[string]string) error {
	if _, err := db.Exec(ctx, createMetadataTableSQL); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	for key, value := range metadata {
		_, err := db.Exec(ctx, `
            INSERT INTO warehouse_metadata (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
        `, key, value)
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}
	return nil
}

// GetMetadataValue retrieves a single metadata value by key.
func GetMetadataValue(ctx context.Context, db DB, key string) (string, error) {
	var value string
	err := db.QueryRow(ctx, `
        SELECT value FROM warehouse_metadata WHERE key = $1
    `, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAllMetadata retrieves all metadata as a map.
func GetAllMetadata(ctx context.Context, db DB) (map[string]string, error) {
	rows, err := db.Query(ctx, `SELECT key, value FROM warehouse_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		metadata[key] = value
	}

	return metadata, rows.Err()
}

// DropMetadata drops the metadata table.
func DropMetadata(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", metadataTable))
	return err
}

// MetadataExists checks if the metadata table exists.
func MetadataExists(ctx context.Context, db DB) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT FROM information_schema.tables
            WHERE table_name = $1
        )
    `, metadataTable).Scan(&exists)
	return exists, err
}
