//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-dwload/internal/db"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
	"github.com/pgEdge/pgedge-dwload/internal/pipeline"
)

var (
	runStrict    bool
	runDuplicate string
	runUnmatched string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full load: staging, dimensions, facts and validation",
	Long: `Run the warehouse pipeline against a database initialized with 'init'.
The stages run in order and the first failure stops the run:

  1. test the database connection
  2. load the CSV extracts into staging
  3. rebuild dim_customers, dim_products and dim_date
  4. rebuild fact_orders and fact_order_items
  5. validate the marts

Example:
  pgedge-dwload run --data-dir data/sample
  pgedge-dwload run --strict --duplicate-policy reject`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runStrict, "strict", false,
		"fail the run when validation finds errors")
	runCmd.Flags().StringVar(&runDuplicate, "duplicate-policy", "",
		"duplicate natural key handling: latest or reject")
	runCmd.Flags().StringVar(&runUnmatched, "unmatched-customer", "",
		"orders with an unknown customer: null or reject")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if runStrict {
		cfg.Validation.Strict = true
	}
	if runDuplicate != "" {
		cfg.ETL.DuplicatePolicy = runDuplicate
	}
	if runUnmatched != "" {
		cfg.ETL.UnmatchedCustomer = runUnmatched
	}

	// Validate configuration
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.ConnString(), cfg.Database.MaxConns)
	if err != nil {
		return &pipeline.ConnectivityError{Err: err}
	}
	defer pool.Close()

	exists, err := db.SchemaExists(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("warehouse schema not found; run 'pgedge-dwload init' first")
	}

	p := pipeline.New(cfg, pool)
	summary, err := p.Run(ctx)
	summary.Print(cmd.OutOrStdout())
	if summary.Validation != nil {
		summary.Validation.Print(cmd.OutOrStdout())
	}
	if err != nil && ctx.Err() != nil {
		logging.Warn().Str("stage", string(summary.Stage)).Msg("Run interrupted")
	}
	return err
}
