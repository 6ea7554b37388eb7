package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/narrate"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of narrate",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("narrate version %s\n", strings.TrimSpace(narrate.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
