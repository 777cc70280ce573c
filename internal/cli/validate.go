package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-dwload/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the loaded marts without reloading them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := connect(ctx, 1)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		report, err := validate.NewValidator(pool).Validate(ctx)
		if err != nil {
			return err
		}
		report.Print(cmd.OutOrStdout())
		if !report.Passed {
			return fmt.Errorf("validation failed with %d issue(s)", len(report.Issues))
		}
		return nil
	},
}
