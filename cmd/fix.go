/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pg-health/internal/fix"
	"github.com/jacobarthurs/pg-health/internal/output"
	"github.com/jacobarthurs/pg-health/internal/pg"
	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

var fixCmd = &cobra.Command{
	Use:   "fix <type>",
	Short: "Plan or apply safe maintenance fixes",
	Long: `Plan maintenance fixes and optionally apply them. Without --apply this
is a dry run: the statements are shown but nothing executes.

Fix types:
  unused-indexes  drop indexes that have never been scanned
  vacuum          VACUUM ANALYZE tables with heavy dead-tuple bloat
  analyze         ANALYZE tables with outdated statistics
  all             all of the above, in that order`,
	Example: `  # Preview every available fix
  pg-health fix all

  # Apply vacuum to specific tables
  pg-health fix vacuum --tables events,public.logs --apply

  # Drop at most two unused indexes
  pg-health fix unused-indexes --limit 2 --apply`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		profileName, _ := cmd.Flags().GetString("profile")
		format, _ := cmd.Flags().GetString("format")
		apply, _ := cmd.Flags().GetBool("apply")
		tables, _ := cmd.Flags().GetString("tables")
		limit, _ := cmd.Flags().GetInt("limit")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}

		typ, err := fix.ParseType(args[0])
		if err != nil {
			return err
		}
		req := fix.Request{Type: typ, DryRun: !apply, Limit: limit}
		for _, t := range strings.Split(tables, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Targets = append(req.Targets, t)
			}
		}

		connStr, err := resolveConn(db, profileName)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		source, err := pg.Connect(ctx, connStr, pg.Options{ConnectTimeout: connectTimeout})
		if err != nil {
			return err
		}
		defer source.Close()

		plan, err := fix.NewPlanner(source, thresholds.Defaults()).Plan(ctx, req)
		if err != nil {
			return err
		}
		if apply {
			if err := fix.NewExecutor(source).Apply(ctx, plan); err != nil {
				return err
			}
		}

		switch format {
		case "json":
			return output.RenderJSON(os.Stdout, plan)
		case "text":
			return output.RenderPlanText(os.Stdout, plan)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fixCmd)
	fixCmd.Flags().StringP("db", "d", "", "PostgreSQL connection string")
	fixCmd.Flags().StringP("profile", "p", "", "Use named profile from config")
	fixCmd.Flags().Bool("apply", false, "Execute the statements instead of previewing")
	fixCmd.Flags().String("tables", "", "Comma-separated tables to narrow vacuum/analyze")
	fixCmd.Flags().Int("limit", 0, "Cap on unused indexes to drop (0 = all)")
	fixCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	fixCmd.MarkFlagsMutuallyExclusive("db", "profile")
}
