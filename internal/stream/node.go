package stream

import (
	"fmt"
	"sync"

	"github.com/treeline-net/treeline/internal/protocol"
)

// Dialer is the transport connection factory a node flushes through: one
// connection per buffer, write the frame, read one reply, close.
type Dialer interface {
	Send(addr protocol.Addr, buf []byte) (reply []byte, err error)
}

// Node is one remote endpoint plus the raw buffers queued for it. Queued
// sends only leave the process on Flush.
type Node struct {
	addr         protocol.Addr
	registerLink bool
	dialer       Dialer

	mu    sync.Mutex
	queue [][]byte
}

func (n *Node) Addr() protocol.Addr {
	return n.addr
}

// RegisterLink reports whether this link was created by registration
// rather than by tree construction.
func (n *Node) RegisterLink() bool {
	return n.registerLink
}

// Enqueue appends one raw buffer to the outbound queue. It never fails;
// delivery problems surface on Flush.
func (n *Node) Enqueue(buf []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, buf)
}

func (n *Node) QueueLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Flush sends every queued buffer in FIFO order, one transport round trip
// each. The reply content is not inspected. On the first failure the
// remaining buffers are dropped and ErrNodeUnreachable is returned;
// buffers already sent stay sent. An empty queue opens no connection.
func (n *Node) Flush() error {
	n.mu.Lock()
	pending := n.queue
	n.queue = nil
	n.mu.Unlock()

	for i, buf := range pending {
		if _, err := n.dialer.Send(n.addr, buf); err != nil {
			return fmt.Errorf(
				"%w: %s after %d of %d buffers: %v",
				ErrNodeUnreachable, n.addr, i, len(pending), err,
			)
		}
	}
	return nil
}
