package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pagesmith/pagesmith/pkg/app"
)

func mcpCmd(flags *globalFlags) *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tools over the Model Context Protocol",
		Long: `Serve the tools over the Model Context Protocol.

With --stdio the server speaks JSON-RPC on stdin and stdout, for clients
that spawn pagesmith as a subprocess. Logs go to stderr. The streamable
HTTP transport is mounted by the gateway module at /mcp instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !stdio {
				return errors.New("mcp: only --stdio is supported here; enable gateway.http for HTTP")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withRuntime(ctx, flags, func(rt *app.Runtime) error {
				return rt.MCP.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve on stdin/stdout")
	return cmd
}
