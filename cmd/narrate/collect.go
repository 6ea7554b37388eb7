package main

import (
	"github.com/aretw0/narrate/internal/cli"
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the analytics collector",
	Long:  `Receives widget analytics events over HTTP and stores them in SQLite or Postgres.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return cli.Collect(configPath(cmd), addr)
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().StringP("addr", "a", "", "Address to listen on (defaults to collector.addr)")
}
