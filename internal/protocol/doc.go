// Package protocol owns the IRC line contract and parsing primitives.
//
// Ownership boundary:
// - message shape
// - parse/serialize of one wire line
// - line length ceiling
//
// Byte-level framing over a stream lives in protocol/line.
package protocol
