// Package overlay runs the tree controllers: a Root that accepts
// registrations, assigns neighbours, and turns reunion hellos around,
// and a Peer that registers, links into the tree, relays broadcasts,
// and keeps its path to the root alive.
//
// Ownership boundary:
// - topology policy (who is registered, who is linked, who is evicted)
// - packet dispatch from the stream inbound buffer
// - reunion scheduling, timeout, and path recovery
// - the optional admin HTTP endpoint per node
//
// The codec stays mechanism: this package reads packet bytes only
// through the protocol views.
package overlay
