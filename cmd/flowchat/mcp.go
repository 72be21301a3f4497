package main

import (
	"fmt"
	"log"
	"os"

	"github.com/aretw0/flowchat/internal/cli"
	"github.com/aretw0/flowchat/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes conversations as MCP tools so AI agents can drive a flow.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		// Logs go to stderr so they never corrupt JSON-RPC on stdout.
		logger, err := cli.NewLogger(cfg.Log, debugFlag(cmd))
		if err != nil {
			return err
		}
		log.SetOutput(os.Stderr)

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		persistence, err := cli.NewPersistence(sigCtx, cfg.Store, logger)
		if err != nil {
			return err
		}
		defer persistence.Close()

		engine, err := newServerEngine(cfg.Backend, logger, debugFlag(cmd), nil)
		if err != nil {
			return err
		}
		srv := mcp.NewServer(engine, persistence.Sessions(logger),
			mcp.WithLogger(logger),
			mcp.WithCallTimeout(cfg.Gateway.CallTimeout),
		)

		switch transport {
		case "stdio":
			logger.Info("Starting flowchat MCP Server (Stdio)...")
			return srv.ServeStdio()
		case "sse":
			addr := fmt.Sprintf(":%d", port)
			logger.Info("Starting flowchat MCP Server (SSE)", "port", port)
			if err := srv.ServeSSE(sigCtx, addr, fmt.Sprintf("http://localhost:%d", port)); err != nil {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
}
