package cmd

import (
	"context"

	"github.com/agentic-research/catalyst/internal/mcpserver"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve dataset tools to an agent over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := newRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }() // safe to ignore
		defer rt.ctrl.Close(context.Background())

		return server.ServeStdio(mcpserver.New(rt.ctrl, logger))
	},
}
