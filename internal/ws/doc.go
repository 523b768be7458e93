// Package ws implements the chat relay's connection lifecycle and fan-out
// engine.
//
// The package implements:
//   - Hub: the subscriber registry; publish delivers one message to every
//     subscribed session and drops subscribers whose delivery buffer is full
//   - Service: the single post path (stamp, append to history, publish)
//     shared by the persistent channel and one-shot HTTP senders
//   - Session: the inbound/outbound pump pair of one connection; when either
//     pump stops, the other is cancelled
//   - Supervisor: authenticates a connection, runs its Session to completion
//     and performs cleanup
//   - Transport: the connection abstraction, with a gorilla/websocket adapter
package ws
