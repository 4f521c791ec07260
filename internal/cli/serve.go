package cli

import (
	"github.com/spf13/cobra"

	"github.com/Tim-sandbox/barista/pkg/api"
	"github.com/Tim-sandbox/barista/pkg/buildinfo"
	"github.com/Tim-sandbox/barista/pkg/metrics"
)

// serveCommand creates the "serve" command running the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted.

Scans left pending or running by a previous process are marked failed
before the server accepts requests. Prometheus metrics are served at
/metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m := metrics.New()
			m.Register()

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.runner.RecoverStale(ctx); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			srv := api.New(api.Options{
				Store:      a.store,
				Runner:     a.runner,
				Aggregator: a.agg,
				Stats:      a.stats,
				Repo:       a.repo,
				Logs:       a.logs,
				Metrics:    m.Handler(),
				Logger:     c.Logger,
			})
			c.Logger.Info("starting barista", "version", buildinfo.Version, "database", a.cfg.Database.Path)
			return srv.Serve(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from config, \":8080\")")
	return cmd
}
