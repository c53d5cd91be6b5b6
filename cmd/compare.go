/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pg-health/internal/comparator"
	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/history"
	"github.com/jacobarthurs/pg-health/internal/output"
)

var compareCmd = &cobra.Command{
	Use:   "compare <before> <after>",
	Short: "Compare two health check runs",
	Long: `Compare two health check runs and show which checks improved,
regressed, appeared, or disappeared between them.

Each argument is either a report JSON file written by check --output,
or the numeric id of a run recorded with check --save (see history
list). One argument (but not both) can be "-" to read a report from
stdin.`,
	Example: `  # Before and after a maintenance window
  pg-health check --db "$DB" -o before.json
  pg-health check --db "$DB" -o after.json
  pg-health compare before.json after.json

  # Compare two saved history runs
  pg-health compare 12 17

  # Pipe the newer report in
  pg-health check --db "$DB" --format json | pg-health compare before.json -`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		if format != "text" && format != "json" {
			return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
		}
		if args[0] == "-" && args[1] == "-" {
			return fmt.Errorf("only one input can read from stdin")
		}

		before, err := loadSnapshot(cmd.Context(), args[0], "before ")
		if err != nil {
			return err
		}
		after, err := loadSnapshot(cmd.Context(), args[1], "after ")
		if err != nil {
			return err
		}

		comp := &comparator.Comparator{Threshold: threshold}
		result := comp.Compare(before, after)

		if format == "json" {
			return output.RenderJSON(os.Stdout, result)
		}
		return output.RenderComparisonText(os.Stdout, result)
	},
}

// loadSnapshot resolves one comparison input: "-" reads a report from
// stdin, digits load a saved run from history, anything else is read
// as a report JSON file.
func loadSnapshot(ctx context.Context, input, label string) (comparator.Snapshot, error) {
	if id, err := strconv.ParseInt(input, 10, 64); err == nil {
		store, err := history.Open("")
		if err != nil {
			return comparator.Snapshot{}, err
		}
		defer store.Close()

		run, err := store.LoadRun(ctx, id)
		if err != nil {
			return comparator.Snapshot{}, err
		}
		return comparator.SnapshotFromRun(run), nil
	}

	var data []byte
	var err error
	if input == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(input)
	}
	if err != nil {
		return comparator.Snapshot{}, fmt.Errorf("reading %sreport: %w", label, err)
	}

	var report health.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return comparator.Snapshot{}, fmt.Errorf("parsing %sreport: %w", label, err)
	}
	if len(report.Checks) == 0 {
		return comparator.Snapshot{}, fmt.Errorf("no checks found in %sinput", label)
	}
	return comparator.SnapshotFromReport(&report), nil
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	compareCmd.Flags().Float64("threshold", comparator.SignificanceThresholdPct,
		"Percent change below which metric movement is ignored")
}
