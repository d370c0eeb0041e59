package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PacketType identifies the body layout of one packet.
type PacketType uint16

const (
	TypeRegister  PacketType = 1
	TypeAdvertise PacketType = 2
	TypeJoin      PacketType = 3
	TypeMessage   PacketType = 4
	TypeReunion   PacketType = 5
)

func (t PacketType) String() string {
	switch t {
	case TypeRegister:
		return "register"
	case TypeAdvertise:
		return "advertise"
	case TypeJoin:
		return "join"
	case TypeMessage:
		return "message"
	case TypeReunion:
		return "reunion"
	default:
		return fmt.Sprintf("type(%d)", uint16(t))
	}
}

const (
	// Version is the wire generation stamped on every encoded packet.
	Version uint16 = 1
	// HeaderSize is the fixed header length in bytes: version u16, type u16,
	// body length u32, source IP as four u16 octets, source port u32.
	HeaderSize = 20
)

// Packet is one complete wire message: the fixed header plus an opaque
// body. Body sub-fields are decoded by the typed views in body.go.
type Packet struct {
	Version uint16
	Type    PacketType
	Source  Addr
	Body    []byte
}

// Marshal encodes the header and body into one big-endian frame. The body
// length field is always computed from the actual body.
func (p *Packet) Marshal() ([]byte, error) {
	if uint64(len(p.Body)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: body is %d bytes", ErrFieldOverflow, len(p.Body))
	}
	buf := make([]byte, HeaderSize+len(p.Body))
	binary.BigEndian.PutUint16(buf[0:2], p.Version)
	binary.BigEndian.PutUint16(buf[2:4], uint16(p.Type))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(p.Body)))
	binary.BigEndian.PutUint16(buf[8:10], uint16(p.Source.IP[0]))
	binary.BigEndian.PutUint16(buf[10:12], uint16(p.Source.IP[1]))
	binary.BigEndian.PutUint16(buf[12:14], uint16(p.Source.IP[2]))
	binary.BigEndian.PutUint16(buf[14:16], uint16(p.Source.IP[3]))
	binary.BigEndian.PutUint32(buf[16:20], uint32(p.Source.Port))
	copy(buf[HeaderSize:], p.Body)
	return buf, nil
}

// Unmarshal parses one complete frame. The buffer must carry exactly the
// header plus the declared body length; the header values are taken as-is
// except where they cannot represent a valid source endpoint.
func Unmarshal(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(buf))
	}
	bodyLen := binary.BigEndian.Uint32(buf[4:8])
	if uint64(len(buf)-HeaderSize) != uint64(bodyLen) {
		return nil, fmt.Errorf(
			"%w: declared body %d bytes, carried %d",
			ErrMalformedHeader, bodyLen, len(buf)-HeaderSize,
		)
	}

	var src Addr
	for i := 0; i < 4; i++ {
		octet := binary.BigEndian.Uint16(buf[8+2*i : 10+2*i])
		if octet > 255 {
			return nil, fmt.Errorf("%w: source octet %d", ErrMalformedHeader, octet)
		}
		src.IP[i] = byte(octet)
	}
	port := binary.BigEndian.Uint32(buf[16:20])
	if port > 65535 {
		return nil, fmt.Errorf("%w: source port %d", ErrMalformedHeader, port)
	}
	src.Port = uint16(port)

	body := make([]byte, bodyLen)
	copy(body, buf[HeaderSize:])
	return &Packet{
		Version: binary.BigEndian.Uint16(buf[0:2]),
		Type:    PacketType(binary.BigEndian.Uint16(buf[2:4])),
		Source:  src,
		Body:    body,
	}, nil
}

// Limits constrains network-facing frame reads.
type Limits struct {
	MaxBodyBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxBodyBytes: 1 << 20}
}

// ReadFrame reads exactly one frame from r: the fixed header, then the body
// it declares. The returned slice is the raw wire image, suitable for
// Unmarshal or for buffering opaquely.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrMalformedHeader
		}
		return nil, err
	}
	bodyLen := binary.BigEndian.Uint32(header[4:8])
	if limits.MaxBodyBytes > 0 && bodyLen > limits.MaxBodyBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, bodyLen)
	}
	frame := make([]byte, HeaderSize+int(bodyLen))
	copy(frame, header)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, frame[HeaderSize:]); err != nil {
			return nil, fmt.Errorf("%w: truncated body", ErrMalformedHeader)
		}
	}
	return frame, nil
}
