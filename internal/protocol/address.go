package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	ipTextLen   = 15
	portTextLen = 5
	addrTextLen = ipTextLen + portTextLen
)

// Addr is one node endpoint. Values are stored numerically, so equality of
// Addr values is canonical-address equality regardless of how the text was
// padded when parsed.
type Addr struct {
	IP   [4]byte
	Port uint16
}

// ParseAddr canonicalizes a dotted-decimal IPv4 and a decimal port.
// Zero padding in the input is accepted: parsing the canonical text of an
// Addr yields the same Addr.
func ParseAddr(ip, port string) (Addr, error) {
	var a Addr
	parts := strings.Split(strings.TrimSpace(ip), ".")
	if len(parts) != 4 {
		return Addr{}, fmt.Errorf("%w: ip %q", ErrInvalidArgument, ip)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return Addr{}, fmt.Errorf("%w: ip octet %q", ErrInvalidArgument, part)
		}
		if n > 255 {
			return Addr{}, fmt.Errorf("%w: ip octet %d", ErrFieldOverflow, n)
		}
		a.IP[i] = byte(n)
	}
	p, err := ParsePort(port)
	if err != nil {
		return Addr{}, err
	}
	a.Port = p
	return a, nil
}

// ParsePort canonicalizes a decimal port. A port whose decimal form needs
// more than 5 digits, or exceeds 65535, does not fit the wire field.
func ParsePort(port string) (uint16, error) {
	text := strings.TrimSpace(port)
	if text == "" {
		return 0, fmt.Errorf("%w: empty port", ErrInvalidArgument)
	}
	if len(text) > portTextLen {
		return 0, fmt.Errorf("%w: port %q", ErrFieldOverflow, port)
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: port %q", ErrInvalidArgument, port)
	}
	if n > 65535 {
		return 0, fmt.Errorf("%w: port %d", ErrFieldOverflow, n)
	}
	return uint16(n), nil
}

// IPString is the canonical 15-character IP text, each octet zero-padded
// to three digits.
func (a Addr) IPString() string {
	return fmt.Sprintf("%03d.%03d.%03d.%03d", a.IP[0], a.IP[1], a.IP[2], a.IP[3])
}

// PortString is the canonical 5-character zero-padded port text.
func (a Addr) PortString() string {
	return fmt.Sprintf("%05d", a.Port)
}

// String is the canonical textual form used in logs and comparisons.
func (a Addr) String() string {
	return a.IPString() + ":" + a.PortString()
}

// HostPort is the unpadded dialable form for net.Dial.
func (a Addr) HostPort() string {
	host := fmt.Sprintf("%d.%d.%d.%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3])
	return net.JoinHostPort(host, strconv.Itoa(int(a.Port)))
}

func (a Addr) IsZero() bool {
	return a == Addr{}
}

// appendText appends the 20-byte canonical address text used inside
// Register, Advertise, and Reunion bodies.
func (a Addr) appendText(buf []byte) []byte {
	buf = append(buf, a.IPString()...)
	return append(buf, a.PortString()...)
}

// parseAddrText decodes one 20-byte canonical address from a body slice.
func parseAddrText(b []byte) (Addr, error) {
	if len(b) != addrTextLen {
		return Addr{}, fmt.Errorf("%w: address text is %d bytes", ErrMalformedBody, len(b))
	}
	a, err := ParseAddr(string(b[:ipTextLen]), string(b[ipTextLen:]))
	if err != nil {
		return Addr{}, fmt.Errorf("%w: address text %q", ErrMalformedBody, b)
	}
	return a, nil
}
