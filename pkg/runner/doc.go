/*
Package runner implements the terminal chat loop over a conversation.

It is the bridge between a Conversation and a line-based surface: it prints
what the bot said, reads the next line and turns it into the submission the
flow is waiting for. Branch options are picked by number or label, yes/no
answers confirmations, and everything else is free text. Once the flow is
finished every line is a question for the bot.

# Key Components

  - Runner: the loop. Persists the state after every transition when a store is set.
  - IOHandler: decouples how events are shown and lines are read.
  - TextHandler: interactive terminal usage, with an optional markdown renderer.
  - JSONHandler: JSON-lines for headless hosts.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithStore(store, "conv-1"),
	)

	if err := r.Run(ctx, conv); err != nil {
		log.Fatal(err)
	}
*/
package runner
