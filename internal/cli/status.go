package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-dwload/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show warehouse metadata and table row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := connect(ctx, 1)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		exists, err := db.MetadataExists(ctx, pool)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("database has not been initialized; run 'pgedge-dwload init' first")
		}

		meta, err := db.GetAllMetadata(ctx, pool)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Printf("%-16s %s\n", k+":", meta[k])
		}

		cmd.Println()
		for _, t := range db.StagingTables {
			if err := printCount(ctx, cmd, pool, db.StagingSchema, t); err != nil {
				return err
			}
		}
		for _, t := range db.MartTables {
			if err := printCount(ctx, cmd, pool, db.MartsSchema, t); err != nil {
				return err
			}
		}
		return nil
	},
}

func printCount(ctx context.Context, cmd *cobra.Command, conn db.DB, schema, table string) error {
	n, err := db.TableCount(ctx, conn, schema, table)
	if err != nil {
		return err
	}
	cmd.Printf("%-28s %d\n", schema+"."+table, n)
	return nil
}
