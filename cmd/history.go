/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pg-health/internal/history"
	"github.com/jacobarthurs/pg-health/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect saved health check runs",
	Long: `Inspect runs recorded with check --save: list them, plot a metric over
time, or prune old data. History lives in a local SQLite database under
` + "`$PG_HEALTH_DATA_DIR`" + ` (default ~/.pg-health) and never contains
connection credentials.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	Example: `  pg-health history list
  pg-health history list --db mydb --days 7`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		days, _ := cmd.Flags().GetInt("days")
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := history.Open("")
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.History(cmd.Context(), db, since(days), limit)
		if err != nil {
			return err
		}
		return output.RenderHistoryText(os.Stdout, entries)
	},
}

var historyTrendCmd = &cobra.Command{
	Use:   "trend <metric>",
	Short: "Show a metric's values over time",
	Long: `Show how one recorded metric moved across saved runs. Metric names
follow "<check name>.<key>"; run "history metrics" to list what has
been recorded for a database.`,
	Example: `  pg-health history trend "Cache Hit Ratio.ratio" --db mydb
  pg-health history trend "Vacuum Stats.max_dead_tuples" --db mydb --days 90`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		days, _ := cmd.Flags().GetInt("days")

		store, err := history.Open("")
		if err != nil {
			return err
		}
		defer store.Close()

		points, err := store.MetricTrend(cmd.Context(), db, args[0], since(days))
		if err != nil {
			return err
		}
		return output.RenderTrendText(os.Stdout, args[0], points)
	},
}

var historyDatabasesCmd = &cobra.Command{
	Use:     "databases",
	Short:   "List databases with saved runs",
	Example: `  pg-health history databases`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open("")
		if err != nil {
			return err
		}
		defer store.Close()

		names, err := store.Databases(cmd.Context())
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No saved runs. Use check --save to record one.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var historyMetricsCmd = &cobra.Command{
	Use:     "metrics",
	Short:   "List metrics recorded for a database",
	Example: `  pg-health history metrics --db mydb`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")

		store, err := history.Open("")
		if err != nil {
			return err
		}
		defer store.Close()

		names, err := store.Metrics(cmd.Context(), db)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Printf("No metrics recorded for %q.\n", db)
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:     "prune",
	Short:   "Delete runs older than a cutoff",
	Example: `  pg-health history prune --days 90`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		store, err := history.Open("")
		if err != nil {
			return err
		}
		defer store.Close()

		removed, err := store.Prune(cmd.Context(), since(days))
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d runs older than %d days.\n", removed, days)
		return nil
	},
}

func since(days int) time.Time {
	return time.Now().AddDate(0, 0, -days)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyTrendCmd)
	historyCmd.AddCommand(historyDatabasesCmd)
	historyCmd.AddCommand(historyMetricsCmd)
	historyCmd.AddCommand(historyPruneCmd)

	historyListCmd.Flags().String("db", "", "Database name filter")
	historyListCmd.Flags().Int("days", 30, "How far back to list")
	historyListCmd.Flags().Int("limit", 20, "Maximum runs to show")

	historyTrendCmd.Flags().String("db", "", "Database name")
	historyTrendCmd.Flags().Int("days", 30, "How far back to sample")
	historyTrendCmd.MarkFlagRequired("db")

	historyMetricsCmd.Flags().String("db", "", "Database name")
	historyMetricsCmd.MarkFlagRequired("db")

	historyPruneCmd.Flags().Int("days", 90, "Delete runs older than this many days")
}
