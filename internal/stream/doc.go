// Package stream owns one node's view of the overlay.
//
// Ownership boundary:
// - the registry of known peer endpoints and their outbound queues
// - the inbound buffer the transport listener fills
// - bulk delivery with unreachable-node eviction
//
// Everything here is raw frames; decoding and dispatch policy live in the
// overlay controllers.
package stream
