package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/treeline-net/treeline/internal/protocol"
)

var (
	ErrDuplicateNode   = errors.New("stream: node already registered")
	ErrUnknownNode     = errors.New("stream: unknown node")
	ErrNodeUnreachable = errors.New("stream: node unreachable")
)

// Stream is the per-process overlay registry: the known peer nodes in
// insertion order plus the inbound frames the listener has buffered.
// The registry lock is never held across network I/O; flushes work on a
// snapshot.
type Stream struct {
	addr   protocol.Addr
	dialer Dialer

	mu      sync.Mutex
	nodes   []*Node
	inbound [][]byte
}

func New(addr protocol.Addr, dialer Dialer) *Stream {
	return &Stream{addr: addr, dialer: dialer}
}

// Addr is the server endpoint this registry belongs to.
func (s *Stream) Addr() protocol.Addr {
	return s.addr
}

// AddNode records a new peer endpoint. Re-adding a known address fails
// with ErrDuplicateNode; callers that want upsert semantics check with
// FindNode first.
func (s *Stream) AddNode(addr protocol.Addr, registerLink bool) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.addr == addr {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, addr)
		}
	}
	node := &Node{addr: addr, registerLink: registerLink, dialer: s.dialer}
	s.nodes = append(s.nodes, node)
	return node, nil
}

// RemoveNode drops the node if present. Removing an absent node is a no-op.
func (s *Stream) RemoveNode(node *Node) {
	if node == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.nodes {
		if n == node {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			return
		}
	}
}

// FindNode returns the node registered under the canonical address.
func (s *Stream) FindNode(addr protocol.Addr) (*Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.addr == addr {
			return n, true
		}
	}
	return nil, false
}

// Nodes returns a snapshot of the registry in insertion order.
func (s *Stream) Nodes() []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

func (s *Stream) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// EnqueueTo queues one raw buffer for the node registered under addr.
func (s *Stream) EnqueueTo(addr protocol.Addr, buf []byte) error {
	node, ok := s.FindNode(addr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, addr)
	}
	node.Enqueue(buf)
	return nil
}

// Eviction records one node dropped during FlushAll and the cause.
type Eviction struct {
	Addr protocol.Addr
	Err  error
}

// FlushAll flushes every node, or only register links when onlyRegister
// is set. A node whose flush fails is removed from the
// registry and delivery to the remaining nodes continues; FlushAll never
// fails itself, the evictions are the report.
func (s *Stream) FlushAll(onlyRegister bool) []Eviction {
	var evicted []Eviction
	for _, node := range s.Nodes() {
		if onlyRegister && !node.RegisterLink() {
			continue
		}
		if err := node.Flush(); err != nil {
			s.RemoveNode(node)
			evicted = append(evicted, Eviction{Addr: node.Addr(), Err: err})
		}
	}
	return evicted
}

// PushInbound appends one received frame. The transport listener is the
// only intended caller.
func (s *Stream) PushInbound(buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = append(s.inbound, buf)
}

// Inbound returns the buffered inbound frames without consuming them.
// Clearing is a separate explicit step.
func (s *Stream) Inbound() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.inbound))
	copy(out, s.inbound)
	return out
}

func (s *Stream) InboundLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inbound)
}

func (s *Stream) ClearInbound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = nil
}
