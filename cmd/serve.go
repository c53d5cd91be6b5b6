/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pg-health/internal/checks"
	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/history"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
	"github.com/jacobarthurs/pg-health/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web interface",
	Long: `Start a local web interface for running health checks from a browser.
Connection strings submitted through the form are used for that check
only and never stored. /badge/{database}.svg serves a status badge for
databases with saved history.`,
	Example: `  pg-health serve
  pg-health serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		srv := web.NewServer(addr, runChecks, latestEntry)
		fmt.Printf("Starting pg-health web interface...\n")
		fmt.Printf("Open http://%s in your browser\n", displayAddr(srv.Addr))
		return srv.ListenAndServe(cmd.Context())
	},
}

func runChecks(ctx context.Context, connStr string) (*health.Report, error) {
	source, err := pg.Connect(ctx, connStr, pg.Options{ConnectTimeout: connectTimeout})
	if err != nil {
		return nil, err
	}
	defer source.Close()
	return checks.NewEvaluator(source, thresholds.Defaults()).Run(ctx)
}

func latestEntry(ctx context.Context, database string) (*history.Entry, error) {
	store, err := history.Open("")
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Latest(ctx, database)
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8767", "Listen address")
}
