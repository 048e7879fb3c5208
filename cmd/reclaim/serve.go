package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/reclaim/internal/app"
)

// shutdownTimeout bounds how long serve waits for scans and requests to stop
const shutdownTimeout = 30 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled scans",
		Long: `Serve exposes scans, duplicate groups, cleanup history and scheduled jobs
as a JSON API with server-sent progress events, runs due jobs every minute,
and purges scan runs older than the retention period once a day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := app.CreateServer(app.ServerConfig{
				Config:      c.cfg,
				Port:        port,
				BindAddress: bind,
				Version:     version,
				Commit:      commit,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return srv.Run(ctx, shutdownTimeout)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from RECLAIM_PORT or 8080)")
	cmd.Flags().StringVar(&bind, "bind", "", "Address to bind (default all interfaces)")
	return cmd
}
