// Package session owns the single live duplex connection of a chatbot client.
//
// A Manager moves through Disconnected -> Connecting -> Open -> Closed and reconnects with a
// bounded exponential backoff when the connection drops while idle. Exhausting the retries
// leaves the manager in the terminal Disconnected state and clears the persisted identity, so
// the next call starts a fresh session.
//
// Exactly one read loop runs per connection. It routes inbound frames to whoever is waiting:
// NewChat acknowledgement waiters and at most one streaming exchange. Stream calls are
// serialised, a second caller waits for the first exchange to finish.
package session
