package main

import (
	"os"

	"github.com/aretw0/narrate/internal/cli"
	"github.com/spf13/cobra"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-synthesize tour narration into the shared cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("concurrency")
		return cli.Warm(cmd.Context(), configPath(cmd), n, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(warmCmd)
	warmCmd.Flags().IntP("concurrency", "j", 4, "Narrations synthesized in parallel")
}
