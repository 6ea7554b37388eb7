package main

import (
	"os"

	"github.com/aretw0/narrate/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [tour]",
	Short: "Print a tour as a Mermaid flowchart",
	Long:  `Prints the pages and steps of a tour as Mermaid syntax, ready to paste into Markdown.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var tourID string
		if len(args) > 0 {
			tourID = args[0]
		}
		at, _ := cmd.Flags().GetInt("at")
		return cli.Graph(cmd.Context(), configPath(cmd), tourID, at, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Int("at", -1, "Highlight progress up to this step index")
}
