//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline runs the warehouse load end to end: connection test,
// staging, dimensions, facts and validation, strictly in that order.
// There is no retry and no resume; a failed run is simply run again.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pgEdge/pgedge-dwload/internal/config"
	"github.com/pgEdge/pgedge-dwload/internal/db"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
	"github.com/pgEdge/pgedge-dwload/internal/staging"
	"github.com/pgEdge/pgedge-dwload/internal/transform"
	"github.com/pgEdge/pgedge-dwload/internal/validate"
)

// Stage names a step of the run.
type Stage string

// Stages in execution order.
const (
	StageInit           Stage = "init"
	StageTestConnection Stage = "test_connection"
	StageExtractLoad    Stage = "extract_load"
	StageDimensions     Stage = "transform_dimensions"
	StageFacts          Stage = "transform_facts"
	StageValidate       Stage = "validate"
	StageSummarize      Stage = "summarize"
	StageDone           Stage = "done"
)

// Run status values recorded in the metadata table.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// StagingLoader stages every input file.
type StagingLoader interface {
	LoadAll(ctx context.Context, dataDir string) (map[staging.Kind]int64, error)
}

// TableLoader rebuilds a group of mart tables.
type TableLoader interface {
	LoadAll(ctx context.Context) (map[string]int64, error)
}

// Checker runs the validation pass.
type Checker interface {
	Validate(ctx context.Context) (*validate.Report, error)
}

// Stages holds the components the pipeline drives.
type Stages struct {
	// TestConnection returns the server version.
	TestConnection func(ctx context.Context) (string, error)
	Staging        StagingLoader
	Dimensions     TableLoader
	Facts          TableLoader
	Validator      Checker

	// Record saves the run outcome. Optional.
	Record func(ctx context.Context, runID, status string, at time.Time) error
}

// Pipeline is a single warehouse load.
type Pipeline struct {
	runID   string
	dataDir string
	strict  bool
	stages  Stages
	now     func() time.Time
}

// New wires a pipeline against database. Every component shares it.
func New(cfg *config.Config, database db.DB) *Pipeline {
	runID := uuid.NewString()
	return NewWithStages(cfg, runID, Stages{
		TestConnection: func(ctx context.Context) (string, error) {
			return db.ServerVersion(ctx, database)
		},
		Staging:    staging.NewLoader(database, cfg.Staging, cfg.ETL.AtomicSteps, runID),
		Dimensions: transform.NewDimensions(database, cfg.ETL),
		Facts:      transform.NewFacts(database, cfg.ETL),
		Validator:  validate.NewValidator(database),
		Record: func(ctx context.Context, id, status string, at time.Time) error {
			return db.SaveRunMetadata(ctx, database, id, status, at)
		},
	})
}

// NewWithStages creates a pipeline from explicit components.
func NewWithStages(cfg *config.Config, runID string, stages Stages) *Pipeline {
	return &Pipeline{
		runID:   runID,
		dataDir: cfg.DataDir,
		strict:  cfg.Validation.Strict,
		stages:  stages,
		now:     time.Now,
	}
}

// RunID returns the id stamped on every row this run stages.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes every stage in order and stops at the first failure. The
// returned summary is never nil and covers the stages that completed.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:   p.runID,
		DataDir: p.dataDir,
		Start:   p.now(),
	}

	logging.Info().
		Str("run_id", p.runID).
		Str("data_dir", p.dataDir).
		Msg("Starting warehouse load")

	summary.Stage = StageTestConnection
	serverVersion, err := p.stages.TestConnection(ctx)
	if err != nil {
		summary.finish(p.now())
		cerr := &ConnectivityError{Err: err}
		logging.Error().Err(err).Msg("Database connection test failed")
		return summary, cerr
	}
	logging.Info().Str("server_version", serverVersion).Msg("Database connection OK")

	if err := p.runStages(ctx, summary); err != nil {
		summary.finish(p.now())
		p.record(ctx, StatusFailed)
		logging.Error().
			Stack().
			Err(err).
			Str("run_id", p.runID).
			Str("stage", string(summary.Stage)).
			Msg("Pipeline failed")
		return summary, err
	}

	summary.Stage = StageSummarize
	summary.finish(p.now())
	p.record(ctx, StatusSucceeded)
	summary.Log()

	summary.Stage = StageDone
	return summary, nil
}

func (p *Pipeline) runStages(ctx context.Context, summary *Summary) error {
	var err error

	summary.Stage = StageExtractLoad
	if summary.Staged, err = p.stages.Staging.LoadAll(ctx, p.dataDir); err != nil {
		return stageError(StageExtractLoad, err)
	}

	summary.Stage = StageDimensions
	if summary.Dimensions, err = p.stages.Dimensions.LoadAll(ctx); err != nil {
		return stageError(StageDimensions, err)
	}

	summary.Stage = StageFacts
	if summary.Facts, err = p.stages.Facts.LoadAll(ctx); err != nil {
		return stageError(StageFacts, err)
	}

	summary.Stage = StageValidate
	if summary.Validation, err = p.stages.Validator.Validate(ctx); err != nil {
		return stageError(StageValidate, err)
	}
	if !summary.Validation.Passed {
		if p.strict {
			return stageError(StageValidate, ErrValidationFailed)
		}
		logging.Warn().Msg("Validation found issues; continuing because strict mode is off")
	}

	return nil
}

// record saves the run outcome. A failure to record never changes the
// outcome of the run.
func (p *Pipeline) record(ctx context.Context, status string) {
	if p.stages.Record == nil {
		return
	}
	if err := p.stages.Record(ctx, p.runID, status, p.now()); err != nil {
		logging.Warn().Err(err).Msg("Failed to record run metadata")
	}
}

func stageError(stage Stage, err error) error {
	return &LoadError{Stage: stage, Err: errors.WithStack(err)}
}
