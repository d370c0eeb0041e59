package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/treeline-net/treeline/internal/protocol"
)

var (
	ErrHandlerRequired = errors.New("transport: handler required")
	ErrNotListening    = errors.New("transport: server is not listening")
)

// AckReply is the reply payload written for every accepted frame.
var AckReply = []byte("ACK")

// Handler consumes one inbound frame and returns the reply payload to
// write before the connection is closed. It is invoked synchronously on
// the connection goroutine.
type Handler func(remote net.Addr, frame []byte) []byte

// Server accepts one-shot frame connections for a single overlay node.
type Server struct {
	cfg     Config
	handler Handler

	mu sync.Mutex
	ln net.Listener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

func NewServer(cfg Config, handler Handler) (*Server, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}
	return &Server{
		cfg:     cfg.WithDefaults(),
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Listen binds the TCP listener and returns the bound address, so a ":0"
// request resolves to a concrete port.
func (s *Server) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return ln.Addr(), nil
}

// Serve accepts connections until ctx is done or the listener fails.
// Each connection carries exactly one request frame.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeAllConns()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.trackConn(conn)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrackConn(conn)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	frame, err := protocol.ReadFrame(conn, s.cfg.Limits)
	if err != nil {
		log.Warn().
			Str("remote", conn.RemoteAddr().String()).
			Err(err).
			Msg("transport read failed")
		return
	}

	reply := s.handler(conn.RemoteAddr(), frame)
	if len(reply) == 0 {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := conn.Write(reply); err != nil {
		log.Warn().
			Str("remote", conn.RemoteAddr().String()).
			Err(err).
			Msg("transport reply write failed")
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
