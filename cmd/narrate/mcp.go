package main

import (
	"github.com/aretw0/narrate/internal/cli"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the widget as an MCP Server so AI agents can list, play and steer tours.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")
		surface, _ := cmd.Flags().GetString("surface")
		bridgeAddr, _ := cmd.Flags().GetString("bridge-addr")
		debug, _ := cmd.Flags().GetBool("debug")
		return cli.ServeMCP(cli.MCPOptions{
			ConfigPath: configPath(cmd),
			Transport:  transport,
			Addr:       addr,
			BaseURL:    baseURL,
			Surface:    cli.SurfaceKind(surface),
			BridgeAddr: bridgeAddr,
			Debug:      debug,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "", "Public base URL of the SSE endpoint")
	mcpCmd.Flags().String("surface", "chrome", "Where tours are drawn: 'chrome' or 'bridge'")
	mcpCmd.Flags().String("bridge-addr", ":8080", "Address serving the page script (only for the bridge surface)")
}
