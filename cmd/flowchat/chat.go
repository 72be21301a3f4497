package main

import (
	"github.com/aretw0/flowchat/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to a bot in the terminal",
	Long: `Starts a conversation with a bot and runs it line by line.
Branch options are numbered, confirmations take yes or no, and any text
after the flow has finished is sent as a question.

With --session the conversation is persisted in the configured store and
resumed on the next run. Use --json for JSON-lines input and output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		bot, _ := cmd.Flags().GetString("bot")
		sessionID, _ := cmd.Flags().GetString("session")
		fresh, _ := cmd.Flags().GetBool("fresh")
		jsonMode, _ := cmd.Flags().GetBool("json")

		return cli.ExecuteChat(cli.ChatOptions{
			Config:         cfg,
			BotID:          bot,
			ConversationID: sessionID,
			Fresh:          fresh,
			JSON:           jsonMode,
			Debug:          debugFlag(cmd),
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("bot", "", "Bot id to talk to (defaults to backend.bot_id)")
	chatCmd.Flags().StringP("session", "s", "", "Conversation id to persist and resume")
	chatCmd.Flags().Bool("fresh", false, "Discard the stored conversation before starting")
	chatCmd.Flags().Bool("json", false, "Use JSON-lines input and output")
}
