// Package observability owns process metrics and the optional metrics
// endpoint.
//
// Ownership boundary:
// - prometheus collectors for the dispatch loop, registered once
// - recorder helpers called from the engine
// - gin router serving /metrics and /health
package observability
