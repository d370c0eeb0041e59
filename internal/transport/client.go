package transport

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/treeline-net/treeline/internal/protocol"
)

var ErrEmptyReply = errors.New("transport: empty reply")

// Client dials one connection per frame. The remote closes the
// connection after writing its reply, so reads run until EOF.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg.WithDefaults()}
}

// Send writes buf as a single request and returns the reply payload.
// A reply of zero bytes reports ErrEmptyReply so callers can tell a
// silent close apart from a short reply.
func (c *Client) Send(addr protocol.Addr, buf []byte) ([]byte, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.Dial("tcp", addr.HostPort())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if _, err := conn.Write(buf); err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReplyTimeout))
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, ErrEmptyReply
	}
	return reply, nil
}
