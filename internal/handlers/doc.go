// Package handlers owns the statically linked handlers selectable by name.
//
// Ownership boundary:
// - keep-alive and channel join (pong, autojoin)
// - owner quit command
// - karma counters over the shared table
// - config-defined rules evaluated with expr
//
// Handlers read identity and counters from the injected plugins.Env and keep
// no process-wide state.
package handlers
