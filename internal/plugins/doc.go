// Package plugins owns command handler loading and lifecycle.
//
// Ownership boundary:
// - handler capability contract (command, message handling, start, stop)
// - bounded registry in registration order
// - directory discovery of loadable units by suffix
//
// Lifecycle order:
// - discover -> load -> register -> initialize -> dispatch -> shutdown -> unload
//
// A unit that opens but does not export a command and a message handler is
// not a plugin and is skipped. A unit that cannot be opened aborts startup.
package plugins
