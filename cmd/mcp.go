package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/codereview/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Tools act as the configured user (user.id, user.role). Register it with an
MCP client as:

  {
    "mcpServers": {
      "codereview": { "command": "codereview", "args": ["mcp"] }
    }
  }

Available tools: review_files, list_reports, get_report, delete_report, ping_llm`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := currentRequester()
		if err != nil {
			return err
		}
		client, err := newLLMClient()
		if err != nil {
			return err
		}
		p, err := newPipeline(client)
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}

		srv := mcp.NewServer(p, s, client, req, buildVersion)
		return srv.ServeStdio(ctxOrBackground(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
