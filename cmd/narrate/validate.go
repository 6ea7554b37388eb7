package main

import (
	"fmt"
	"os"

	"github.com/aretw0/narrate/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check tour definitions",
	Long:  `Checks every tour against the schema and reports missing ids, duplicates and malformed steps.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) > 0 {
			path = args[0]
		}
		if err := cli.Validate(cmd.Context(), configPath(cmd), path, os.Stdout); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Println("Tours are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
