package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-dwload/internal/dashboard"
	"github.com/pgEdge/pgedge-dwload/internal/logging"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard queries as a JSON API",
	Long: `Serve KPI, trend, product, category, segment, country and recent order
queries over HTTP. Results are cached per window for dashboard.cache_ttl.

Example:
  pgedge-dwload serve --listen :8050`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveListen != "" {
			cfg.Dashboard.Listen = serveListen
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pool, err := connect(ctx, cfg.Dashboard.MaxConns)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		q := dashboard.NewCached(dashboard.NewStore(pool), cfg.Dashboard.CacheTTL)
		logging.Info().
			Dur("cache_ttl", cfg.Dashboard.CacheTTL).
			Msg("Starting dashboard API")
		return dashboard.Serve(ctx, cfg.Dashboard.Listen, q)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "",
		"address to listen on (default from config)")
}
