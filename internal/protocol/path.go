package protocol

// Path is the ordered list of addresses a Reunion packet has walked,
// oldest first: the originating leaf seeds it with its own address and
// every relay toward the root appends itself.
type Path []Addr

// MaxPathEntries bounds the two-digit entry count on the wire.
const MaxPathEntries = 99

// Append returns a new Path with addr appended. The receiver is unchanged,
// so relays can re-encode without mutating the packet they received.
func (p Path) Append(addr Addr) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, addr)
}

// Reversed returns the path in root-to-target order. The root applies this
// exactly once when deriving a Hello Back; relays forward the result
// untouched. The codec itself never reverses.
func (p Path) Reversed() Path {
	out := make(Path, len(p))
	for i, addr := range p {
		out[len(p)-1-i] = addr
	}
	return out
}

// IndexOf returns the position of addr in the path, or -1. A Hello Back
// relay forwards to the entry after its own position; the final entry is
// the target.
func (p Path) IndexOf(addr Addr) int {
	for i, a := range p {
		if a == addr {
			return i
		}
	}
	return -1
}
