/*
Package domain contains the core domain models of the flowchat conversation client.

It defines the entities the session state machine works with: the chat events a
conversation surface displays, the single outstanding input request, the
conversation root state and the decoded shapes of the flow backend responses.
This package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - ChatEvent: One unit of conversation output (user or bot origin).
  - PausedState: The single input request the flow is waiting on, if any.
  - SessionState: The mutable root of a conversation (session id, events, paused, finished).
  - Effect: A side-effect the host must perform (e.g. open a redirect URL).
  - FlowStep / RawMessage / Answer: Decoded backend payloads.
*/
package domain
