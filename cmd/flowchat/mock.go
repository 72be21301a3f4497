package main

import (
	"github.com/aretw0/flowchat/internal/cli"
	"github.com/aretw0/flowchat/pkg/adapters/mockbackend"
	"github.com/spf13/cobra"
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a scripted flow backend for local development",
	Long: `Serves the backend wire contract (start, respond, ask) from a YAML flow
script. Without --script the built-in demo script is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")
		scriptPath, _ := cmd.Flags().GetString("script")

		logger, err := cli.NewLogger(cfg.Log, debugFlag(cmd))
		if err != nil {
			return err
		}

		script := mockbackend.DefaultScript()
		if scriptPath != "" {
			if script, err = mockbackend.LoadScript(scriptPath); err != nil {
				return err
			}
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		backend := mockbackend.New(script, mockbackend.WithLogger(logger))
		logger.Info("Starting mock backend", "bots", script.BotIDs())
		return cli.ListenAndServe(sigCtx, addr, backend.Routes(), logger)
	},
}

func init() {
	rootCmd.AddCommand(mockCmd)
	mockCmd.Flags().String("addr", ":8090", "Address to listen on")
	mockCmd.Flags().String("script", "", "Path to a YAML flow script")
}
