package overlay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/treeline-net/treeline/internal/observability"
	"github.com/treeline-net/treeline/internal/protocol"
	"github.com/treeline-net/treeline/internal/stream"
	"github.com/treeline-net/treeline/internal/transport"
)

var (
	ErrInvalidReunionInterval = errors.New("overlay: invalid reunion interval")
	ErrInvalidRootAddr        = errors.New("overlay: invalid root address")
	ErrRegisterFailed         = errors.New("overlay: register with root failed")
)

// PeerConfig configures a leaf or relay node.
type PeerConfig struct {
	Name             string
	ListenIP         string
	ListenPort       uint16
	RootIP           string
	RootPort         uint16
	AdminListenAddr  string
	AdminToken       string
	PollInterval     time.Duration
	ReunionInterval  time.Duration
	ReunionTimeout   time.Duration
	RegisterAttempts int
	Backoff          BackoffConfig
	Transport        transport.Config
}

// DefaultPeerConfig returns the peer runtime defaults. ListenPort 0 lets
// the kernel pick a free port.
func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		Name:             "peer.local",
		ListenIP:         "127.0.0.1",
		ListenPort:       0,
		RootIP:           "127.0.0.1",
		RootPort:         5000,
		AdminListenAddr:  "",
		PollInterval:     200 * time.Millisecond,
		ReunionInterval:  20 * time.Second,
		ReunionTimeout:   40 * time.Second,
		RegisterAttempts: 5,
		Backoff:          DefaultBackoffConfig(),
		Transport:        transport.DefaultConfig(),
	}
}

// Peer registers with the root, links into the tree through the
// advertise/join exchange, relays broadcasts along its links, and keeps
// its path to the root alive with periodic reunion hellos.
type Peer struct {
	cfg PeerConfig
	log zerolog.Logger

	server   *transport.Server
	serveErr chan error
	stream   *stream.Stream
	self     protocol.Addr
	root     protocol.Addr

	mu           sync.Mutex
	registered   bool
	parent       protocol.Addr
	children     map[protocol.Addr]struct{}
	pendingSince time.Time

	messages *messageLog
	started  time.Time
}

func NewPeer(cfg PeerConfig) *Peer {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultPeerConfig().Name
	}
	if cfg.RegisterAttempts <= 0 {
		cfg.RegisterAttempts = DefaultPeerConfig().RegisterAttempts
	}
	if cfg.ReunionTimeout <= 0 {
		cfg.ReunionTimeout = 2 * cfg.ReunionInterval
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoffConfig()
	}
	cfg.Transport = cfg.Transport.WithDefaults()
	return &Peer{
		cfg:      cfg,
		log:      log.With().Str("node", cfg.Name).Logger(),
		children: make(map[protocol.Addr]struct{}),
		messages: newMessageLog(),
	}
}

// Run blocks until a process signal stops the service.
func (p *Peer) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.bootstrap(ctx); err != nil {
		return err
	}
	return p.serve(ctx)
}

// Addr is the canonical overlay address, valid after bootstrap.
func (p *Peer) Addr() protocol.Addr {
	return p.self
}

// bootstrap brings the peer onto the overlay: listen, register with the
// root until acknowledged, then ask for a neighbour. The neighbour
// assignment arrives asynchronously and is handled by dispatch.
func (p *Peer) bootstrap(ctx context.Context) error {
	if p.cfg.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if p.cfg.ReunionInterval <= 0 {
		return ErrInvalidReunionInterval
	}
	root, err := protocol.ParseAddr(p.cfg.RootIP, strconv.Itoa(int(p.cfg.RootPort)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRootAddr, err)
	}

	srv, err := transport.NewServer(p.cfg.Transport, func(remote net.Addr, frame []byte) []byte {
		p.stream.PushInbound(frame)
		return transport.AckReply
	})
	if err != nil {
		return err
	}
	bound, err := srv.Listen(listenSpec(p.cfg.ListenIP, p.cfg.ListenPort))
	if err != nil {
		return err
	}
	self, err := resolveSelf(bound, p.cfg.ListenIP)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidListenAddr, err)
	}
	if self == root {
		return fmt.Errorf("%w: peer and root share %s", ErrInvalidRootAddr, self)
	}

	p.server = srv
	p.self = self
	p.root = root
	p.stream = stream.New(self, transport.NewClient(p.cfg.Transport))
	p.started = time.Now()

	p.serveErr = make(chan error, 1)
	go func() { p.serveErr <- p.server.Serve(ctx) }()

	if err := p.registerWithRoot(ctx); err != nil {
		return err
	}
	p.sendAdvertiseRequest()
	p.flushNow()

	p.log.Info().
		Str("addr", self.String()).
		Str("root", root.String()).
		Dur("reunion_interval", p.cfg.ReunionInterval).
		Msg("peer ready")
	return nil
}

// registerWithRoot sends Register requests until the root's ACK arrives
// on our own listener, backing off between attempts. A failed flush
// evicts the root node; sendRegister re-adds it on the next attempt.
func (p *Peer) registerWithRoot(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; attempt <= p.cfg.RegisterAttempts; attempt++ {
		p.sendRegister()
		p.flushNow()
		if p.awaitRegistered(ctx, p.cfg.Transport.ReplyTimeout) {
			p.log.Info().Int("attempt", attempt).Msg("registered with root")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == p.cfg.RegisterAttempts {
			break
		}
		delay := NextBackoffDelay(p.cfg.Backoff, attempt, rng)
		p.log.Warn().Int("attempt", attempt).Dur("retry_in", delay).Msg("register not acknowledged")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrRegisterFailed, p.root, p.cfg.RegisterAttempts)
}

// awaitRegistered polls the inbound buffer until the registration ACK is
// dispatched or the wait elapses.
func (p *Peer) awaitRegistered(ctx context.Context, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		p.pollOnce()
		if p.isRegistered() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *Peer) serve(ctx context.Context) error {
	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()
	reunion := time.NewTicker(p.cfg.ReunionInterval)
	defer reunion.Stop()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(p.cfg.AdminListenAddr) != "" {
		go func() { adminErr <- serveAdmin(ctx, p.cfg.AdminListenAddr, p.cfg.AdminToken, p) }()
	}

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("peer shutdown")
			return nil
		case err := <-p.serveErr:
			if err != nil {
				return err
			}
		case err := <-adminErr:
			if err != nil {
				return err
			}
		case <-reunion.C:
			p.reunionTick()
		case <-poll.C:
			p.pollOnce()
		}
	}
}

// reunionTick drives the liveness state machine: recover registration,
// recover the tree link, give up on a dead path, or send the next hello.
func (p *Peer) reunionTick() {
	p.mu.Lock()
	registered := p.registered
	parent := p.parent
	pending := p.pendingSince
	p.mu.Unlock()

	switch {
	case !registered:
		p.log.Warn().Msg("not registered, re-registering")
		p.sendRegister()
	case parent.IsZero():
		p.sendAdvertiseRequest()
	case !pending.IsZero() && time.Since(pending) > p.cfg.ReunionTimeout:
		observability.RecordReunionFailure(p.cfg.Name)
		p.log.Warn().
			Str("parent", parent.String()).
			Dur("pending", time.Since(pending)).
			Msg("reunion timed out, rebuilding tree link")
		p.clearParent()
		p.sendAdvertiseRequest()
	default:
		p.sendHello()
	}
	p.flushNow()
}

// pollOnce drains the inbound buffer, dispatches every frame, then
// flushes all queued packets.
func (p *Peer) pollOnce() {
	frames := p.stream.Inbound()
	if len(frames) > 0 {
		p.stream.ClearInbound()
		for _, frame := range frames {
			p.dispatch(frame)
		}
	}
	p.flushNow()
}

func (p *Peer) flushNow() {
	for _, ev := range p.stream.FlushAll(false) {
		p.handleEviction(ev)
	}
}

// handleEviction resets the controller state that depended on the lost
// link; the reunion tick rebuilds it.
func (p *Peer) handleEviction(ev stream.Eviction) {
	observability.RecordEviction(p.cfg.Name, "flush")
	p.log.Warn().Str("peer", ev.Addr.String()).Err(ev.Err).Msg("link evicted after failed flush")

	p.mu.Lock()
	if ev.Addr == p.root {
		p.registered = false
	}
	if ev.Addr == p.parent {
		p.parent = protocol.Addr{}
		p.pendingSince = time.Time{}
	}
	delete(p.children, ev.Addr)
	p.mu.Unlock()
}

func (p *Peer) dispatch(frame []byte) {
	pkt, err := protocol.Unmarshal(frame)
	if err != nil {
		p.log.Warn().Err(err).Msg("drop undecodable frame")
		return
	}
	observability.RecordPacketReceived(p.cfg.Name, pkt.Type.String())

	switch pkt.Type {
	case protocol.TypeRegister:
		p.handleRegister(pkt)
	case protocol.TypeAdvertise:
		p.handleAdvertise(pkt)
	case protocol.TypeJoin:
		p.handleJoin(pkt)
	case protocol.TypeMessage:
		p.handleMessage(pkt)
	case protocol.TypeReunion:
		p.handleReunion(pkt, frame)
	default:
		p.log.Warn().
			Str("type", pkt.Type.String()).
			Str("source", pkt.Source.String()).
			Msg("drop unknown packet type")
	}
}

func (p *Peer) handleRegister(pkt *protocol.Packet) {
	body, err := protocol.ParseRegisterBody(pkt.Body)
	if err != nil {
		p.log.Warn().Err(err).Str("source", pkt.Source.String()).Msg("drop malformed register")
		return
	}
	if body.Intent != protocol.IntentResponse {
		p.log.Debug().Str("source", pkt.Source.String()).Msg("ignore register request at peer")
		return
	}
	p.mu.Lock()
	was := p.registered
	p.registered = true
	p.mu.Unlock()
	if !was {
		p.log.Info().Str("root", pkt.Source.String()).Msg("registration acknowledged")
	}
}

func (p *Peer) handleAdvertise(pkt *protocol.Packet) {
	body, err := protocol.ParseAdvertiseBody(pkt.Body)
	if err != nil {
		p.log.Warn().Err(err).Str("source", pkt.Source.String()).Msg("drop malformed advertise")
		return
	}
	if body.Intent != protocol.IntentResponse {
		p.log.Debug().Str("source", pkt.Source.String()).Msg("ignore advertise request at peer")
		return
	}
	p.adoptParent(body.Neighbour)
}

// adoptParent links to the advertised neighbour and announces the edge
// with a Join. The neighbour may be the root itself.
func (p *Peer) adoptParent(neighbour protocol.Addr) {
	if neighbour == p.self {
		p.log.Warn().Msg("drop advertise naming this node as its own parent")
		return
	}
	if p.ensureNode(neighbour) == nil {
		return
	}

	p.mu.Lock()
	p.parent = neighbour
	p.pendingSince = time.Time{}
	p.mu.Unlock()

	join := protocol.NewJoin(p.self)
	buf, err := join.Marshal()
	if err != nil {
		p.log.Error().Err(err).Msg("encode join")
		return
	}
	if err := p.stream.EnqueueTo(neighbour, buf); err != nil {
		p.log.Warn().Err(err).Str("parent", neighbour.String()).Msg("drop join")
		return
	}
	observability.RecordPacketRelayed(p.cfg.Name, join.Type.String())
	p.log.Info().Str("parent", neighbour.String()).Msg("joining parent")
}

func (p *Peer) handleJoin(pkt *protocol.Packet) {
	if err := protocol.ParseJoinBody(pkt.Body); err != nil {
		p.log.Warn().Err(err).Str("source", pkt.Source.String()).Msg("drop malformed join")
		return
	}
	child := pkt.Source
	if child == p.self {
		p.log.Warn().Msg("drop join from own address")
		return
	}
	if p.ensureNode(child) == nil {
		return
	}
	p.mu.Lock()
	p.children[child] = struct{}{}
	p.mu.Unlock()
	p.log.Info().Str("child", child.String()).Msg("tree child joined")
}

func (p *Peer) handleMessage(pkt *protocol.Packet) {
	text := protocol.MessageText(pkt.Body)
	p.messages.add(MessageRecord{
		Text:       text,
		Source:     pkt.Source.String(),
		ReceivedAt: time.Now(),
	})
	p.log.Info().Str("from", pkt.Source.String()).Str("text", text).Msg("broadcast received")
	p.relayMessage(text, pkt.Source)
}

// relayMessage re-encodes text with this node as header source and queues
// it on every tree link except the one it arrived on. arrivedFrom is zero
// for locally injected broadcasts.
func (p *Peer) relayMessage(text string, arrivedFrom protocol.Addr) {
	out := protocol.NewMessage(text, p.self)
	buf, err := out.Marshal()
	if err != nil {
		p.log.Error().Err(err).Msg("encode message relay")
		return
	}
	for _, link := range p.treeLinks() {
		if link == arrivedFrom {
			continue
		}
		if err := p.stream.EnqueueTo(link, buf); err != nil {
			p.log.Warn().Err(err).Str("peer", link.String()).Msg("drop message relay")
			continue
		}
		observability.RecordPacketRelayed(p.cfg.Name, out.Type.String())
	}
}

func (p *Peer) handleReunion(pkt *protocol.Packet, frame []byte) {
	body, err := protocol.ParseReunionBody(pkt.Body)
	if err != nil {
		p.log.Warn().Err(err).Str("source", pkt.Source.String()).Msg("drop malformed reunion")
		return
	}
	switch body.Intent {
	case protocol.IntentRequest:
		p.relayHello(body.Path)
	case protocol.IntentResponse:
		p.handleHelloBack(body.Path, frame)
	}
}

// relayHello appends this node to an upward hello and re-encodes it for
// the parent link.
func (p *Peer) relayHello(path protocol.Path) {
	parent := p.parentAddr()
	if parent.IsZero() {
		p.log.Warn().Msg("drop hello, no parent link")
		return
	}
	if path.IndexOf(p.self) >= 0 {
		p.log.Warn().Msg("drop hello, this node is already on the path")
		return
	}
	pkt, err := protocol.NewReunion(protocol.IntentRequest, p.self, path.Append(p.self))
	if err != nil {
		p.log.Warn().Err(err).Int("path_entries", len(path)).Msg("drop hello")
		return
	}
	buf, err := pkt.Marshal()
	if err != nil {
		p.log.Error().Err(err).Msg("encode hello relay")
		return
	}
	if err := p.stream.EnqueueTo(parent, buf); err != nil {
		p.log.Warn().Err(err).Str("parent", parent.String()).Msg("drop hello relay")
		return
	}
	observability.RecordPacketRelayed(p.cfg.Name, pkt.Type.String())
}

// handleHelloBack completes this node's round trip when it is the final
// path entry, otherwise forwards the frame unchanged to the entry after
// its own position.
func (p *Peer) handleHelloBack(path protocol.Path, frame []byte) {
	idx := path.IndexOf(p.self)
	if idx < 0 {
		p.log.Warn().Msg("drop hello back, this node is not on the path")
		return
	}
	if idx == len(path)-1 {
		p.mu.Lock()
		p.pendingSince = time.Time{}
		p.mu.Unlock()
		observability.RecordReunionRoundTrip(p.cfg.Name)
		p.log.Debug().Int("path_entries", len(path)).Msg("reunion round trip complete")
		return
	}
	next := path[idx+1]
	if p.ensureNode(next) == nil {
		return
	}
	if err := p.stream.EnqueueTo(next, frame); err != nil {
		p.log.Warn().Err(err).Str("next", next.String()).Msg("drop hello back relay")
		return
	}
	observability.RecordPacketRelayed(p.cfg.Name, protocol.TypeReunion.String())
}

// sendRegister queues a Register request naming this node's own listen
// address. Re-adds the root node if an earlier flush evicted it.
func (p *Peer) sendRegister() {
	if _, ok := p.stream.FindNode(p.root); !ok {
		if _, err := p.stream.AddNode(p.root, true); err != nil {
			p.log.Error().Err(err).Msg("re-add root node")
			return
		}
	}
	pkt, err := protocol.NewRegister(protocol.IntentRequest, p.self, p.self)
	if err != nil {
		p.log.Error().Err(err).Msg("encode register request")
		return
	}
	buf, err := pkt.Marshal()
	if err != nil {
		p.log.Error().Err(err).Msg("encode register request")
		return
	}
	if err := p.stream.EnqueueTo(p.root, buf); err != nil {
		p.log.Warn().Err(err).Msg("drop register request")
		return
	}
	observability.RecordPacketRelayed(p.cfg.Name, pkt.Type.String())
}

// sendAdvertiseRequest asks the root for a neighbour to link under.
func (p *Peer) sendAdvertiseRequest() {
	if _, ok := p.stream.FindNode(p.root); !ok {
		if _, err := p.stream.AddNode(p.root, true); err != nil {
			p.log.Error().Err(err).Msg("re-add root node")
			return
		}
	}
	pkt, err := protocol.NewAdvertise(protocol.IntentRequest, p.self, protocol.Addr{})
	if err != nil {
		p.log.Error().Err(err).Msg("encode advertise request")
		return
	}
	buf, err := pkt.Marshal()
	if err != nil {
		p.log.Error().Err(err).Msg("encode advertise request")
		return
	}
	if err := p.stream.EnqueueTo(p.root, buf); err != nil {
		p.log.Warn().Err(err).Msg("drop advertise request")
		return
	}
	observability.RecordPacketRelayed(p.cfg.Name, pkt.Type.String())
	p.log.Info().Msg("advertise requested")
}

// sendHello starts or continues a reunion round: a request whose path is
// seeded with this node's own address, sent up the parent link. The
// pending timer starts with the first unanswered hello.
func (p *Peer) sendHello() {
	parent := p.parentAddr()
	pkt, err := protocol.NewReunion(protocol.IntentRequest, p.self, protocol.Path{p.self})
	if err != nil {
		p.log.Error().Err(err).Msg("encode hello")
		return
	}
	buf, err := pkt.Marshal()
	if err != nil {
		p.log.Error().Err(err).Msg("encode hello")
		return
	}
	if err := p.stream.EnqueueTo(parent, buf); err != nil {
		p.log.Warn().Err(err).Str("parent", parent.String()).Msg("drop hello")
		return
	}
	p.mu.Lock()
	if p.pendingSince.IsZero() {
		p.pendingSince = time.Now()
	}
	p.mu.Unlock()
	observability.RecordPacketRelayed(p.cfg.Name, pkt.Type.String())
}

// clearParent drops the tree link so the next tick can rebuild it. The
// node itself survives when it still serves another role: the root link,
// or a joined child edge.
func (p *Peer) clearParent() {
	p.mu.Lock()
	parent := p.parent
	p.parent = protocol.Addr{}
	p.pendingSince = time.Time{}
	_, isChild := p.children[parent]
	p.mu.Unlock()

	if parent.IsZero() || parent == p.root || isChild {
		return
	}
	if node, ok := p.stream.FindNode(parent); ok {
		p.stream.RemoveNode(node)
	}
}

// ensureNode returns the registered node for addr, adding it first when
// unknown.
func (p *Peer) ensureNode(addr protocol.Addr) *stream.Node {
	if node, ok := p.stream.FindNode(addr); ok {
		return node
	}
	node, err := p.stream.AddNode(addr, false)
	if err != nil {
		p.log.Error().Err(err).Str("peer", addr.String()).Msg("add node")
		return nil
	}
	return node
}

// treeLinks lists the links broadcasts travel on: the parent plus every
// joined child. A neighbour that is both parent and child (the root may
// advertise two peers to each other) is listed once, so the shared edge
// carries a broadcast once.
func (p *Peer) treeLinks() []protocol.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	links := make([]protocol.Addr, 0, len(p.children)+1)
	if !p.parent.IsZero() {
		links = append(links, p.parent)
	}
	for child := range p.children {
		if child == p.parent {
			continue
		}
		links = append(links, child)
	}
	return links
}

func (p *Peer) parentAddr() protocol.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

func (p *Peer) isRegistered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered
}

func (p *Peer) NodeName() string {
	return p.cfg.Name
}

func (p *Peer) Status() StatusView {
	p.mu.Lock()
	registered := p.registered
	parent := p.parent
	p.mu.Unlock()

	links := p.treeLinks()
	texts := make([]string, 0, len(links))
	for _, link := range links {
		texts = append(texts, link.String())
	}
	sort.Strings(texts)

	parentText := ""
	if !parent.IsZero() {
		parentText = parent.String()
	}
	return StatusView{
		Node:       p.cfg.Name,
		Role:       "peer",
		Address:    p.self.String(),
		Registered: registered,
		Parent:     parentText,
		Links:      texts,
		Peers:      p.stream.NodeCount(),
		Uptime:     time.Since(p.started).String(),
		Messages:   p.messages.count(),
	}
}

func (p *Peer) RecentMessages(limit int) []MessageRecord {
	return p.messages.recent(limit)
}

// Broadcast injects a message originating at this node.
func (p *Peer) Broadcast(text string) error {
	p.messages.add(MessageRecord{
		Text:       text,
		Source:     p.self.String(),
		ReceivedAt: time.Now(),
	})
	p.relayMessage(text, protocol.Addr{})
	return nil
}
