// Package engine owns the dispatch loop and the bot service lifecycle.
//
// Ownership boundary:
// - read -> parse -> dispatch -> write loop on one connection
// - fan-out to matching handlers with a shared response budget
// - Running/Draining/Stopped state transitions
// - startup and shutdown ordering for plugins, store and connection
//
// Dispatch is single-threaded. Responses to one line are written before the
// next line is read.
package engine
