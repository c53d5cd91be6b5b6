/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pg-health/internal/thresholds"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter thresholds file",
	Long: `Write a commented thresholds file listing every metric with its
built-in warning and critical levels. Uncomment a block and adjust the
numbers, then pass the file to check via --thresholds.

An existing file is never overwritten unless --force is given.`,
	Example: `  # Write pg-health.yaml in the current directory
  pg-health init

  # Write to a custom path, replacing what is there
  pg-health init conf/thresholds.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path := "pg-health.yaml"
		if len(args) == 1 {
			path = args[0]
		}

		if !force {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}

		if err := os.WriteFile(path, []byte(thresholds.Template()), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		fmt.Printf("Wrote %s\n", path)
		fmt.Println("Uncomment a metric block to override its levels, then run:")
		fmt.Printf("  pg-health check --thresholds %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
}
