//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package staging

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-dwload/internal/config"
	"github.com/pgEdge/pgedge-dwload/internal/db"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
)

// Loader writes input files into the staging schema.
type Loader struct {
	db        db.DB
	policies  map[string]string
	batchSize int
	atomic    bool
	runID     string
	now       func() time.Time
}

// NewLoader creates a Loader. Every row it writes is stamped with runID.
func NewLoader(database db.DB, cfg config.StagingConfig, atomic bool, runID string) *Loader {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Loader{
		db:        database,
		policies:  cfg.Policies,
		batchSize: batchSize,
		atomic:    atomic,
		runID:     runID,
		now:       time.Now,
	}
}

// Load stages one input file according to the kind's write policy and
// returns the number of rows written. The file is parsed completely before
// anything is written, so a malformed file leaves staging untouched.
func (l *Loader) Load(ctx context.Context, kind Kind, path string) (int64, error) {
	policy, err := PolicyFor(l.policies, kind)
	if err != nil {
		return 0, err
	}

	rows, err := ReadFile(kind, path)
	if err != nil {
		return 0, err
	}

	loadedAt := l.now().UTC()
	source := filepath.Base(path)
	for i, row := range rows {
		rows[i] = append(row, loadedAt, source, l.runID)
	}

	var written int64
	err = db.RunStep(ctx, l.db, l.atomic, func(conn db.DB) error {
		written = 0
		if policy == config.PolicyReplace {
			sql := "TRUNCATE TABLE " + l.table(kind).Sanitize() + " RESTART IDENTITY"
			if _, err := conn.Exec(ctx, sql); err != nil {
				return fmt.Errorf("failed to truncate staging.%s: %w", kind, err)
			}
		}
		n, err := l.copyRows(ctx, conn, kind, rows)
		written = n
		return err
	})
	if err != nil {
		return written, err
	}

	logging.Info().
		Str("table", "staging."+kind.Table()).
		Str("file", source).
		Str("policy", policy).
		Int64("rows", written).
		Msg("Staged file")

	return written, nil
}

// LoadAll stages every input file found in dataDir in dependency order.
// The first failure stops the load; kinds already staged are kept.
func (l *Loader) LoadAll(ctx context.Context, dataDir string) (map[Kind]int64, error) {
	counts := make(map[Kind]int64, len(Kinds))
	for _, kind := range Kinds {
		n, err := l.Load(ctx, kind, filepath.Join(dataDir, kind.File()))
		if err != nil {
			return counts, fmt.Errorf("staging %s: %w", kind, err)
		}
		counts[kind] = n
	}
	return counts, nil
}

func (l *Loader) table(kind Kind) pgx.Identifier {
	return pgx.Identifier{db.StagingSchema, kind.Table()}
}

// copyRows writes rows with COPY in chunks of batchSize.
func (l *Loader) copyRows(ctx context.Context, conn db.DB, kind Kind, rows [][]any) (int64, error) {
	cols := Columns(kind)
	var total int64
	for start := 0; start < len(rows); start += l.batchSize {
		end := min(start+l.batchSize, len(rows))
		n, err := conn.CopyFrom(ctx, l.table(kind), cols, pgx.CopyFromRows(rows[start:end]))
		total += n
		if err != nil {
			return total, fmt.Errorf("failed to copy into staging.%s (rows %d-%d): %w",
				kind, start+1, end, err)
		}
		logging.Debug().
			Str("table", kind.Table()).
			Int("chunk_start", start).
			Int64("rows", n).
			Msg("Copied chunk")
	}
	return total, nil
}
