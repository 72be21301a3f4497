/*
Package flowchat is a UI-independent client for scripted chatbot flows.

A flow backend drives the conversation one step at a time: it greets the
user, asks questions, offers branch options, requests confirmations and
eventually finishes. Once a flow is finished, the conversation falls back to
open question answering. flowchat owns the client side of that protocol: it
normalizes backend steps into chat events, tracks what the flow is waiting
for, and guarantees that at most one backend call is in flight per
conversation.

Presentation surfaces (the HTTP gateway, the terminal chat, the MCP tools)
are thin adapters over the same Conversation.

# Usage

	eng, err := flowchat.New("https://bots.example.com")
	if err != nil {
		log.Fatal(err)
	}

	conv := eng.NewConversation("bot-1")
	out, err := conv.Start(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, ev := range out.Events {
		fmt.Println(ev.Text, ev.BranchOptions)
	}

	// Answer a branch prompt
	out, err = conv.SubmitBranchOption(ctx, out.Events[0].ID, "Sales")

Submissions that do not fit the current state (an empty text, a second
selection of the same branch, a submission while a call is in flight) are
rejected with an error wrapping domain.ErrValidation and leave the state
untouched. Backend failures never surface as errors: they are converted into
apology events appended to the conversation.
*/
package flowchat
