/*
Package ports defines the driven ports (interfaces) of the flowchat client.

These interfaces decouple the conversation state machine from external
implementations, allowing it to work with any backend transport, storage
backend or host environment.

# Key Interfaces

  - FlowTransport: Calls the flow backend (start, respond, ask).
  - StateStore: Persists and loads conversation SessionState.
  - DistributedLocker: Provides distributed locking for concurrent conversation access.
  - EffectDispatcher: Performs host side-effects such as opening redirect URLs.
*/
package ports
