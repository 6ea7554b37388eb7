package main

import (
	"github.com/aretw0/narrate/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API server",
	Long: `Serves the widget over HTTP: a JSON control API, server-sent events and, with
the bridge surface, the /narrate.js script a host page loads to be driven.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		surface, _ := cmd.Flags().GetString("surface")
		debug, _ := cmd.Flags().GetBool("debug")
		return cli.Serve(cli.ServeOptions{
			ConfigPath: configPath(cmd),
			Addr:       addr,
			Surface:    cli.SurfaceKind(surface),
			Debug:      debug,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().String("surface", "bridge", "Where tours are drawn: 'bridge' or 'chrome'")
}
