// Package transport owns the single outbound stream to the IRC server.
//
// Ownership boundary:
// - address resolution (host or host:port, default port)
// - one-shot connect, no reconnect or backoff
// - line reads and full writes over the connection
//
// Connection loss is terminal for a run.
package transport
