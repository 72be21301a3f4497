package main

import (
	"github.com/aretw0/flowchat/internal/cli"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage stored conversations",
	Long:  `List, inspect, and remove conversations kept in the configured store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPersistence(cmd, func(p *cli.Persistence) error {
			return cli.ListSessions(cmd.Context(), p.Store, cmd.OutOrStdout())
		})
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <conversation-id>",
	Short: "Inspect the state of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPersistence(cmd, func(p *cli.Persistence) error {
			return cli.InspectSession(cmd.Context(), p.Store, args[0], cmd.OutOrStdout())
		})
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <conversation-id>...",
	Short: "Remove one or more conversations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPersistence(cmd, func(p *cli.Persistence) error {
			return cli.RemoveSessions(cmd.Context(), p.Store, args, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}

func withPersistence(cmd *cobra.Command, fn func(*cli.Persistence) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := cli.NewPersistence(cmd.Context(), cfg.Store, logging.NewNop())
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p)
}
