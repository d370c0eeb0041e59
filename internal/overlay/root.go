package overlay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os/signal"
	"sort"
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
	ErrInvalidPollInterval = errors.New("overlay: invalid poll interval")
	ErrInvalidListenAddr   = errors.New("overlay: invalid listen address")
)

// RootConfig configures the coordinating node.
type RootConfig struct {
	Name            string
	ListenIP        string
	ListenPort      uint16
	AdminListenAddr string
	AdminToken      string
	PollInterval    time.Duration
	StaleAfter      time.Duration
	Transport       transport.Config
}

// DefaultRootConfig returns the root runtime defaults.
func DefaultRootConfig() RootConfig {
	return RootConfig{
		Name:            "root.local",
		ListenIP:        "127.0.0.1",
		ListenPort:      5000,
		AdminListenAddr: "",
		PollInterval:    200 * time.Millisecond,
		StaleAfter:      90 * time.Second,
		Transport:       transport.DefaultConfig(),
	}
}

// Root accepts peer registrations, assigns tree neighbours, relays
// broadcasts to its tree children, and turns reunion hellos around.
type Root struct {
	cfg RootConfig
	log zerolog.Logger

	server *transport.Server
	stream *stream.Stream
	self   protocol.Addr

	mu       sync.Mutex
	children map[protocol.Addr]struct{}
	lastSeen map[protocol.Addr]time.Time
	rng      *rand.Rand

	messages *messageLog
	started  time.Time
}

func NewRoot(cfg RootConfig) *Root {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultRootConfig().Name
	}
	cfg.Transport = cfg.Transport.WithDefaults()
	return &Root{
		cfg:      cfg,
		log:      log.With().Str("node", cfg.Name).Logger(),
		children: make(map[protocol.Addr]struct{}),
		lastSeen: make(map[protocol.Addr]time.Time),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		messages: newMessageLog(),
	}
}

// Run blocks until a process signal stops the service.
func (r *Root) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.bootstrap(); err != nil {
		return err
	}
	return r.serve(ctx)
}

// Addr is the canonical overlay address, valid after bootstrap.
func (r *Root) Addr() protocol.Addr {
	return r.self
}

func (r *Root) bootstrap() error {
	if r.cfg.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}

	srv, err := transport.NewServer(r.cfg.Transport, func(remote net.Addr, frame []byte) []byte {
		r.stream.PushInbound(frame)
		return transport.AckReply
	})
	if err != nil {
		return err
	}
	bound, err := srv.Listen(listenSpec(r.cfg.ListenIP, r.cfg.ListenPort))
	if err != nil {
		return err
	}
	self, err := resolveSelf(bound, r.cfg.ListenIP)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidListenAddr, err)
	}

	r.server = srv
	r.self = self
	r.stream = stream.New(self, transport.NewClient(r.cfg.Transport))
	r.started = time.Now()

	r.log.Info().
		Str("addr", self.String()).
		Dur("poll_interval", r.cfg.PollInterval).
		Dur("stale_after", r.cfg.StaleAfter).
		Msg("root ready")
	return nil
}

func (r *Root) serve(ctx context.Context) error {
	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	var sweep <-chan time.Time
	if r.cfg.StaleAfter > 0 {
		sweeper := time.NewTicker(r.cfg.StaleAfter / 2)
		defer sweeper.Stop()
		sweep = sweeper.C
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- r.server.Serve(ctx) }()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(r.cfg.AdminListenAddr) != "" {
		go func() { adminErr <- serveAdmin(ctx, r.cfg.AdminListenAddr, r.cfg.AdminToken, r) }()
	}

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("root shutdown")
			return nil
		case err := <-serveErr:
			if err != nil {
				return err
			}
		case err := <-adminErr:
			if err != nil {
				return err
			}
		case <-sweep:
			r.sweepStale()
		case <-poll.C:
			r.pollOnce()
		}
	}
}

// pollOnce drains the inbound buffer, dispatches every frame, then
// flushes all queued replies and relays.
func (r *Root) pollOnce() {
	frames := r.stream.Inbound()
	if len(frames) > 0 {
		r.stream.ClearInbound()
		for _, frame := range frames {
			r.dispatch(frame)
		}
	}
	for _, ev := range r.stream.FlushAll(false) {
		r.forget(ev.Addr)
		observability.RecordEviction(r.cfg.Name, "flush")
		r.log.Warn().Str("peer", ev.Addr.String()).Err(ev.Err).Msg("peer evicted after failed flush")
	}
	observability.SetRegisteredPeers(r.cfg.Name, r.stream.NodeCount())
}

func (r *Root) dispatch(frame []byte) {
	pkt, err := protocol.Unmarshal(frame)
	if err != nil {
		r.log.Warn().Err(err).Msg("drop undecodable frame")
		return
	}
	observability.RecordPacketReceived(r.cfg.Name, pkt.Type.String())
	r.touch(pkt.Source)

	switch pkt.Type {
	case protocol.TypeRegister:
		r.handleRegister(pkt)
	case protocol.TypeAdvertise:
		r.handleAdvertise(pkt)
	case protocol.TypeJoin:
		r.handleJoin(pkt)
	case protocol.TypeMessage:
		r.handleMessage(pkt)
	case protocol.TypeReunion:
		r.handleReunion(pkt)
	default:
		r.log.Warn().
			Str("type", pkt.Type.String()).
			Str("source", pkt.Source.String()).
			Msg("drop unknown packet type")
	}
}

// handleRegister records the body target address and queues the ACK back
// to it. Re-registering an already known peer is answered the same way.
func (r *Root) handleRegister(pkt *protocol.Packet) {
	body, err := protocol.ParseRegisterBody(pkt.Body)
	if err != nil {
		r.log.Warn().Err(err).Str("source", pkt.Source.String()).Msg("drop malformed register")
		return
	}
	if body.Intent != protocol.IntentRequest {
		r.log.Debug().Str("source", pkt.Source.String()).Msg("ignore register response")
		return
	}

	target := body.Target
	if _, ok := r.stream.FindNode(target); !ok {
		if _, err := r.stream.AddNode(target, true); err != nil {
			r.log.Warn().Err(err).Str("peer", target.String()).Msg("register failed")
			return
		}
		r.log.Info().Str("peer", target.String()).Msg("peer registered")
	}
	r.touch(target)

	res, err := protocol.NewRegister(protocol.IntentResponse, r.self, protocol.Addr{})
	if err != nil {
		r.log.Error().Err(err).Msg("encode register ack")
		return
	}
	r.reply(target, res)
}

func (r *Root) handleAdvertise(pkt *protocol.Packet) {
	body, err := protocol.ParseAdvertiseBody(pkt.Body)
	if err != nil {
		r.log.Warn().Err(err).Str("source", pkt.Source.String()).Msg("drop malformed advertise")
		return
	}
	if body.Intent != protocol.IntentRequest {
		r.log.Debug().Str("source", pkt.Source.String()).Msg("ignore advertise response")
		return
	}

	requester := pkt.Source
	if _, ok := r.stream.FindNode(requester); !ok {
		r.log.Warn().Str("peer", requester.String()).Msg("drop advertise from unregistered peer")
		return
	}

	neighbour := r.pickNeighbour(requester)
	res, err := protocol.NewAdvertise(protocol.IntentResponse, r.self, neighbour)
	if err != nil {
		r.log.Error().Err(err).Msg("encode advertise response")
		return
	}
	r.reply(requester, res)
	r.log.Info().
		Str("peer", requester.String()).
		Str("neighbour", neighbour.String()).
		Msg("neighbour advertised")
}

// pickNeighbour returns a uniformly random registered peer other than the
// requester, or the root itself when no other peer exists.
func (r *Root) pickNeighbour(requester protocol.Addr) protocol.Addr {
	var candidates []protocol.Addr
	for _, node := range r.stream.Nodes() {
		if node.Addr() != requester {
			candidates = append(candidates, node.Addr())
		}
	}
	if len(candidates) == 0 {
		return r.self
	}
	r.mu.Lock()
	idx := r.rng.Intn(len(candidates))
	r.mu.Unlock()
	return candidates[idx]
}

// handleJoin marks the sender as a tree child. Children are the subset of
// registered peers broadcasts are relayed to.
func (r *Root) handleJoin(pkt *protocol.Packet) {
	if err := protocol.ParseJoinBody(pkt.Body); err != nil {
		r.log.Warn().Err(err).Str("source", pkt.Source.String()).Msg("drop malformed join")
		return
	}
	child := pkt.Source
	if _, ok := r.stream.FindNode(child); !ok {
		r.log.Warn().Str("peer", child.String()).Msg("drop join from unregistered peer")
		return
	}
	r.mu.Lock()
	r.children[child] = struct{}{}
	r.mu.Unlock()
	r.log.Info().Str("peer", child.String()).Msg("tree child joined")
}

func (r *Root) handleMessage(pkt *protocol.Packet) {
	text := protocol.MessageText(pkt.Body)
	r.messages.add(MessageRecord{
		Text:       text,
		Source:     pkt.Source.String(),
		ReceivedAt: time.Now(),
	})
	r.relayMessage(text, pkt.Source)
}

// relayMessage re-encodes text with this node as header source and queues
// it to every tree child except the link it arrived on, so each tree edge
// carries a broadcast exactly once. arrivedFrom is zero for locally
// injected broadcasts.
func (r *Root) relayMessage(text string, arrivedFrom protocol.Addr) {
	pkt := protocol.NewMessage(text, r.self)
	buf, err := pkt.Marshal()
	if err != nil {
		r.log.Error().Err(err).Msg("encode message relay")
		return
	}

	r.mu.Lock()
	children := make([]protocol.Addr, 0, len(r.children))
	for child := range r.children {
		children = append(children, child)
	}
	r.mu.Unlock()

	for _, child := range children {
		if child == arrivedFrom {
			continue
		}
		if err := r.stream.EnqueueTo(child, buf); err != nil {
			r.log.Warn().Err(err).Str("peer", child.String()).Msg("drop message relay")
			continue
		}
		observability.RecordPacketRelayed(r.cfg.Name, pkt.Type.String())
	}
}

// handleReunion reverses an accumulated hello path exactly once and sends
// the hello back toward the first entry of the reversed path. An empty
// path is answered directly to the header source.
func (r *Root) handleReunion(pkt *protocol.Packet) {
	body, err := protocol.ParseReunionBody(pkt.Body)
	if err != nil {
		r.log.Warn().Err(err).Str("source", pkt.Source.String()).Msg("drop malformed reunion")
		return
	}
	if body.Intent != protocol.IntentRequest {
		r.log.Debug().Str("source", pkt.Source.String()).Msg("ignore hello back at root")
		return
	}
	for _, entry := range body.Path {
		r.touch(entry)
	}

	back := body.Path.Reversed()
	next := pkt.Source
	if len(back) > 0 {
		next = back[0]
	}
	res, err := protocol.NewReunion(protocol.IntentResponse, r.self, back)
	if err != nil {
		r.log.Error().Err(err).Msg("encode hello back")
		return
	}
	r.reply(next, res)
	r.log.Debug().
		Str("next", next.String()).
		Int("path_entries", len(back)).
		Msg("hello back sent")
}

// reply marshals pkt and queues it for the registered peer at to.
func (r *Root) reply(to protocol.Addr, pkt *protocol.Packet) {
	buf, err := pkt.Marshal()
	if err != nil {
		r.log.Error().Err(err).Str("type", pkt.Type.String()).Msg("encode reply")
		return
	}
	if err := r.stream.EnqueueTo(to, buf); err != nil {
		r.log.Warn().
			Err(err).
			Str("peer", to.String()).
			Str("type", pkt.Type.String()).
			Msg("drop reply for unknown peer")
		return
	}
	observability.RecordPacketRelayed(r.cfg.Name, pkt.Type.String())
}

// touch refreshes the last-seen time for a registered peer. Unregistered
// addresses are not tracked.
func (r *Root) touch(addr protocol.Addr) {
	if _, ok := r.stream.FindNode(addr); !ok {
		return
	}
	r.mu.Lock()
	r.lastSeen[addr] = time.Now()
	r.mu.Unlock()
}

// forget drops the controller bookkeeping for a peer that left the
// registry.
func (r *Root) forget(addr protocol.Addr) {
	r.mu.Lock()
	delete(r.children, addr)
	delete(r.lastSeen, addr)
	r.mu.Unlock()
}

// sweepStale evicts peers whose last observed packet is older than
// StaleAfter. A healthy peer sends a reunion hello every interval, so a
// quiet peer has lost its path or died.
func (r *Root) sweepStale() {
	cutoff := time.Now().Add(-r.cfg.StaleAfter)

	var stale []protocol.Addr
	r.mu.Lock()
	for addr, seen := range r.lastSeen {
		if seen.Before(cutoff) {
			stale = append(stale, addr)
		}
	}
	r.mu.Unlock()

	for _, addr := range stale {
		if node, ok := r.stream.FindNode(addr); ok {
			r.stream.RemoveNode(node)
		}
		r.forget(addr)
		observability.RecordEviction(r.cfg.Name, "stale")
		r.log.Warn().Str("peer", addr.String()).Msg("peer evicted as stale")
	}
	if len(stale) > 0 {
		observability.SetRegisteredPeers(r.cfg.Name, r.stream.NodeCount())
	}
}

func (r *Root) NodeName() string {
	return r.cfg.Name
}

func (r *Root) Status() StatusView {
	r.mu.Lock()
	links := make([]string, 0, len(r.children))
	for child := range r.children {
		links = append(links, child.String())
	}
	r.mu.Unlock()
	sort.Strings(links)

	return StatusView{
		Node:       r.cfg.Name,
		Role:       "root",
		Address:    r.self.String(),
		Registered: true,
		Links:      links,
		Peers:      r.stream.NodeCount(),
		Uptime:     time.Since(r.started).String(),
		Messages:   r.messages.count(),
	}
}

func (r *Root) RecentMessages(limit int) []MessageRecord {
	return r.messages.recent(limit)
}

// Broadcast injects a message originating at this node.
func (r *Root) Broadcast(text string) error {
	r.messages.add(MessageRecord{
		Text:       text,
		Source:     r.self.String(),
		ReceivedAt: time.Now(),
	})
	r.relayMessage(text, protocol.Addr{})
	return nil
}
