/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pg-health/internal/checks"
	"github.com/jacobarthurs/pg-health/internal/fix"
	"github.com/jacobarthurs/pg-health/internal/mcpserver"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/suggest"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as a Model Context Protocol server",
	Long: `Speak the Model Context Protocol on stdin/stdout so AI agents can run
health checks, request recommendations, and plan or apply fixes. Add it
to an MCP client configuration as:

  {"command": "pg-health", "args": ["mcp"]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps := mcpserver.Deps{
			Check:   runChecks,
			Suggest: mcpSuggest,
			Fix:     mcpFix,
		}
		return mcpserver.New(Version, deps).Run(cmd.Context())
	},
}

func mcpSuggest(ctx context.Context, connStr string) ([]suggest.Recommendation, error) {
	source, err := pg.Connect(ctx, connStr, pg.Options{ConnectTimeout: connectTimeout})
	if err != nil {
		return nil, err
	}
	defer source.Close()

	cfg := thresholds.Defaults()
	report, err := checks.NewEvaluator(source, cfg).Run(ctx)
	if err != nil {
		return nil, err
	}
	return suggest.Build(report, suggest.Collect(ctx, source), cfg), nil
}

func mcpFix(ctx context.Context, connStr string, req fix.Request) (*fix.Plan, error) {
	source, err := pg.Connect(ctx, connStr, pg.Options{ConnectTimeout: connectTimeout})
	if err != nil {
		return nil, err
	}
	defer source.Close()

	plan, err := fix.NewPlanner(source, thresholds.Defaults()).Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if !req.DryRun {
		if err := fix.NewExecutor(source).Apply(ctx, plan); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
