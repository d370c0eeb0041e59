package overlay

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/treeline-net/treeline/internal/protocol"
	"github.com/treeline-net/treeline/internal/testutil/testlog"
)

// TestOverlayConvergesOverLoopback runs a root and two peers on real
// sockets: registration, neighbour assignment, joins, a relayed reunion
// round trip, and a broadcast that reaches every node exactly once.
func TestOverlayConvergesOverLoopback(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := startTestRoot(t, ctx, 0)

	a := startTestPeer(t, ctx, "peer-a", root.Addr(), 40*time.Millisecond)
	waitFor(t, 2*time.Second, func() bool {
		return a.parentAddr() == root.Addr()
	}, "first peer did not link under the root")
	waitFor(t, 2*time.Second, func() bool {
		return rootHasChild(root, a.Addr())
	}, "root never saw the first peer's join")

	b := startTestPeer(t, ctx, "peer-b", root.Addr(), 40*time.Millisecond)
	waitFor(t, 2*time.Second, func() bool {
		return b.parentAddr() == a.Addr()
	}, "second peer was not advertised the first")
	waitFor(t, 2*time.Second, func() bool {
		return peerHasChild(a, b.Addr())
	}, "first peer never saw the second's join")

	// a hello from b climbs through a; the root credits every path entry
	linked := time.Now()
	waitFor(t, 2*time.Second, func() bool {
		root.mu.Lock()
		seen := root.lastSeen[b.Addr()]
		root.mu.Unlock()
		return seen.After(linked)
	}, "relayed hello never reached the root")

	// and the hello back rides the reversed path down to b
	waitFor(t, 2*time.Second, func() bool {
		b.mu.Lock()
		pending := b.pendingSince
		b.mu.Unlock()
		return !pending.IsZero()
	}, "second peer never started a reunion round")
	waitFor(t, 2*time.Second, func() bool {
		b.mu.Lock()
		pending := b.pendingSince
		b.mu.Unlock()
		return pending.IsZero()
	}, "reunion round trip never completed")

	if err := b.Broadcast("over the ridge"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return a.messages.count() == 1 && root.messages.count() == 1
	}, "broadcast did not reach every node")

	// settle and check nothing was delivered twice
	time.Sleep(100 * time.Millisecond)
	if got := a.messages.count(); got != 1 {
		t.Fatalf("relay peer saw %d copies, want exactly 1", got)
	}
	if got := root.messages.count(); got != 1 {
		t.Fatalf("root saw %d copies, want exactly 1", got)
	}
	if got := b.messages.count(); got != 1 {
		t.Fatalf("origin peer logged %d records, want its own only", got)
	}

	recs := a.RecentMessages(1)
	if len(recs) != 1 || recs[0].Text != "over the ridge" || recs[0].Source != b.Addr().String() {
		t.Fatalf("relay peer logged %+v", recs)
	}
	rootRecs := root.RecentMessages(1)
	if len(rootRecs) != 1 || rootRecs[0].Source != a.Addr().String() {
		t.Fatalf("root's copy arrived from %s, want the relay %s", rootRecs[0].Source, a.Addr())
	}
}

func TestRootEvictsSilentPeerOverLoopback(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := startTestRoot(t, ctx, 120*time.Millisecond)
	p := startTestPeer(t, ctx, "peer-quiet", root.Addr(), time.Hour)

	waitFor(t, 2*time.Second, func() bool {
		_, ok := root.stream.FindNode(p.Addr())
		return ok
	}, "quiet peer never registered")

	waitFor(t, 3*time.Second, func() bool {
		_, ok := root.stream.FindNode(p.Addr())
		return !ok
	}, "quiet peer was never swept")
	if rootHasChild(root, p.Addr()) {
		t.Fatal("swept peer stayed a tree child")
	}
}

func TestPeerBootstrapFailsWhenRootUnreachable(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultPeerConfig()
	cfg.Name = "peer-orphan"
	cfg.ListenPort = 0
	cfg.RootIP = "127.0.0.1"
	cfg.RootPort = unusedPort(t)
	cfg.PollInterval = 5 * time.Millisecond
	cfg.RegisterAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 1.5, MaxDelay: 30 * time.Millisecond}
	cfg.Transport.ConnectTimeout = 200 * time.Millisecond
	cfg.Transport.ReplyTimeout = 50 * time.Millisecond

	p := NewPeer(cfg)
	if err := p.bootstrap(ctx); !errors.Is(err, ErrRegisterFailed) {
		t.Fatalf("bootstrap error = %v, want ErrRegisterFailed", err)
	}
}

func startTestRoot(t *testing.T, ctx context.Context, staleAfter time.Duration) *Root {
	t.Helper()
	cfg := DefaultRootConfig()
	cfg.Name = "root-e2e"
	cfg.ListenIP = "127.0.0.1"
	cfg.ListenPort = 0
	cfg.PollInterval = 15 * time.Millisecond
	cfg.StaleAfter = staleAfter
	r := NewRoot(cfg)
	if err := r.bootstrap(); err != nil {
		t.Fatalf("root bootstrap: %v", err)
	}
	go func() { _ = r.serve(ctx) }()
	return r
}

func startTestPeer(t *testing.T, ctx context.Context, name string, root protocol.Addr, reunionEvery time.Duration) *Peer {
	t.Helper()
	cfg := DefaultPeerConfig()
	cfg.Name = name
	cfg.ListenIP = "127.0.0.1"
	cfg.ListenPort = 0
	cfg.RootIP = "127.0.0.1"
	cfg.RootPort = root.Port
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ReunionInterval = reunionEvery
	cfg.ReunionTimeout = 500 * time.Millisecond
	cfg.RegisterAttempts = 3
	cfg.Backoff = BackoffConfig{InitialDelay: 20 * time.Millisecond, Multiplier: 2.0, MaxDelay: 100 * time.Millisecond}
	p := NewPeer(cfg)
	if err := p.bootstrap(ctx); err != nil {
		t.Fatalf("peer %s bootstrap: %v", name, err)
	}
	go func() { _ = p.serve(ctx) }()
	return p
}

func rootHasChild(r *Root, addr protocol.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.children[addr]
	return ok
}

func peerHasChild(p *Peer, addr protocol.Addr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.children[addr]
	return ok
}

func waitFor(t *testing.T, within time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %v: %s", within, what)
}

func unusedPort(t *testing.T) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe for a free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return uint16(port)
}
