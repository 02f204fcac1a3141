// Package store owns the shared counter table handed to handlers.
//
// Ownership boundary:
// - in-memory name -> int table guarded for concurrent readers
// - whole-table load at startup and whole-table save at shutdown
// - backend selection (flat file, sqlite, none)
//
// There are no durability guarantees. A crash between load and save loses
// every adjustment made during the run.
package store
