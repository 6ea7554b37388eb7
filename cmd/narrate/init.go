package main

import (
	"os"

	"github.com/aretw0/narrate/internal/cli"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a configuration and a sample tour",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		return cli.Init(dir, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
