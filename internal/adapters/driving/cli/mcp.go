package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sitesync/internal/adapters/driving/mcp"
)

var mcpPort int

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start a Model Context Protocol server exposing the enqueue_sync,
cancel_job and job_status tools plus the sites and jobs resources.

The server speaks JSON-RPC over stdio unless --port is given, in which case
it serves streamable HTTP on that port.

Jobs queued through MCP are processed by "sitesync run" like any other.

Examples:
  sitesync mcp serve
  sitesync mcp serve --port 8080

Assistant configuration:
  {
    "mcpServers": {
      "sitesync": {
        "command": "/path/to/sitesync",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	server, err := mcp.NewServer(&mcp.Ports{Sync: syncService})
	if err != nil {
		return err
	}

	if mcpPort > 0 {
		addr := fmt.Sprintf(":%d", mcpPort)
		fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
