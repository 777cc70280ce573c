package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-dwload/internal/db"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
)

var initDropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the staging and marts schemas",
	Long: `Create the staging and marts schemas and their tables in the target
database. Running init against an initialized database is a no-op unless
--drop-existing is given, in which case every warehouse table is dropped
and recreated empty.

Example:
  pgedge-dwload init --connection "postgres://dataeng@localhost/ecommerce_dw"`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop existing warehouse schemas before initialization")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	pool, err := connect(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	exists, err := db.SchemaExists(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}

	// Drop existing schema if requested
	if initDropExisting {
		if exists {
			logging.Warn().Msg("Dropping existing warehouse schema")
		}
		if err := db.DropSchema(ctx, pool); err != nil {
			return err
		}
		if err := db.DropMetadata(ctx, pool); err != nil {
			logging.Debug().Err(err).Msg("No metadata table to drop")
		}
	} else if exists {
		logging.Info().Msg("Warehouse schema already present")
	}

	logging.Info().Msg("Creating schema")
	if err := db.CreateSchema(ctx, pool); err != nil {
		return err
	}

	if err := db.SaveMetadata(ctx, pool); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	logging.Info().Msg("Database initialization complete")
	return nil
}
