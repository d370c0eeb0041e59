package protocol

import "fmt"

const (
	ackText  = "ACK"
	joinText = "JOIN"
)

// NewRegister builds a Register packet. A request carries the address the
// sender asks the root to record; a response carries the literal ACK and
// ignores target.
func NewRegister(intent Intent, source, target Addr) (*Packet, error) {
	switch intent {
	case IntentRequest:
		if target.IsZero() {
			return nil, fmt.Errorf("%w: register request needs a target address", ErrInvalidArgument)
		}
		body := make([]byte, 0, intentTagLen+addrTextLen)
		body = append(body, intent.Tag()...)
		body = target.appendText(body)
		return &Packet{Version: Version, Type: TypeRegister, Source: source, Body: body}, nil
	case IntentResponse:
		return &Packet{
			Version: Version,
			Type:    TypeRegister,
			Source:  source,
			Body:    []byte(intent.Tag() + ackText),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIntent, intent)
	}
}

// NewAdvertise builds an Advertise packet. A request carries no payload
// beyond the tag; a response carries the neighbour address the root assigned,
// which is mandatory.
func NewAdvertise(intent Intent, source, neighbour Addr) (*Packet, error) {
	switch intent {
	case IntentRequest:
		return &Packet{
			Version: Version,
			Type:    TypeAdvertise,
			Source:  source,
			Body:    []byte(intent.Tag()),
		}, nil
	case IntentResponse:
		if neighbour.IsZero() {
			return nil, fmt.Errorf("%w: advertise response needs a neighbour address", ErrInvalidArgument)
		}
		body := make([]byte, 0, intentTagLen+addrTextLen)
		body = append(body, intent.Tag()...)
		body = neighbour.appendText(body)
		return &Packet{Version: Version, Type: TypeAdvertise, Source: source, Body: body}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIntent, intent)
	}
}

// NewJoin builds a Join packet. The body is the fixed JOIN literal; the
// header source address is the whole payload a receiver acts on.
func NewJoin(source Addr) *Packet {
	return &Packet{Version: Version, Type: TypeJoin, Source: source, Body: []byte(joinText)}
}

// NewMessage builds a broadcast Message packet carrying raw text. Empty
// text is legal and encodes a zero-length body.
func NewMessage(text string, source Addr) *Packet {
	return &Packet{Version: Version, Type: TypeMessage, Source: source, Body: []byte(text)}
}

// NewReunion builds a Reunion packet: the intent tag, a two-digit entry
// count, then each path entry as canonical address text. The path is
// encoded in the order given; direction rules (append on the way up,
// reverse once at the root) belong to the caller.
func NewReunion(intent Intent, source Addr, path Path) (*Packet, error) {
	if !intent.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIntent, intent)
	}
	if len(path) > MaxPathEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrTooManyEntries, len(path))
	}
	body := make([]byte, 0, intentTagLen+reunionCountLen+len(path)*addrTextLen)
	body = append(body, intent.Tag()...)
	body = append(body, fmt.Sprintf("%02d", len(path))...)
	for _, entry := range path {
		body = entry.appendText(body)
	}
	return &Packet{Version: Version, Type: TypeReunion, Source: source, Body: body}, nil
}
