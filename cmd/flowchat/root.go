package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/cli"
	"github.com/aretw0/flowchat/internal/config"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowchat",
	Short: "flowchat is a client for guided conversation flows",
	Long: `flowchat talks to a remote conversation flow service: it starts sessions,
submits free text, confirmations and branch selections, and keeps the
transcript. Use it as a terminal chat, an HTTP gateway or an MCP server.`,
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
	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to the flowchat YAML configuration")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging to stderr")
	rootCmd.PersistentFlags().String("backend", "", "Base URL of the flow backend (overrides config)")
	rootCmd.PersistentFlags().String("store", "", "Conversation store: memory, file or redis (overrides config)")
}

// loadConfig reads the configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend.URL = backend
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.Store.Kind = store
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func debugFlag(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}

// newServerEngine builds the engine shared by long running servers, feeding
// the metrics hooks when metrics are enabled.
func newServerEngine(cfg config.Backend, logger *slog.Logger, debug bool, metrics *observability.Metrics) (*flowchat.Engine, error) {
	var hooks []domain.LifecycleHooks
	if metrics != nil {
		hooks = append(hooks, metrics.Hooks())
	}
	return cli.NewEngine(cfg, logger, debug, hooks...)
}
