package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "narrate",
	Short: "Narrate plays voice-guided tours over a web page",
	Long: `Narrate walks users through a web page step by step: it highlights elements,
speaks the narration and answers questions about what is on screen.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the narrate.yaml configuration")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	if p == "" {
		if _, err := os.Stat("narrate.yaml"); err == nil {
			return "narrate.yaml"
		}
	}
	return p
}
