package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-dwload/internal/dashboard"
)

var analyticsWindow string

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Print a sales report from the marts",
	Long: `Print the sales overview, top products, category revenue and customer
segment breakdown for completed orders in the chosen window.

Example:
  pgedge-dwload analytics --window 90`,
	RunE: func(cmd *cobra.Command, args []string) error {
		win, err := dashboard.ParseWindow(analyticsWindow)
		if err != nil {
			return err
		}

		ctx := context.Background()
		pool, err := connect(ctx, 1)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		return dashboard.PrintReport(ctx, dashboard.NewStore(pool), win, cmd.OutOrStdout())
	},
}

func init() {
	analyticsCmd.Flags().StringVar(&analyticsWindow, "window", "30",
		"reporting window in days: 7, 30, 90 or all")
}
