// Package protocol owns the treeline wire contract.
//
// Ownership boundary:
// - fixed 20-byte packet header encode/decode
// - the five packet body layouts and their typed views
// - canonical address text (zero-padded octets and port)
// - reunion path accumulation and reversal primitives
package protocol
