package protocol

import (
	"fmt"
	"strconv"
)

const reunionCountLen = 2

// RegisterBody is the decoded view of a Register packet body.
type RegisterBody struct {
	Intent Intent
	Target Addr // request only
}

func ParseRegisterBody(body []byte) (RegisterBody, error) {
	intent, rest, err := splitIntent(body)
	if err != nil {
		return RegisterBody{}, err
	}
	switch intent {
	case IntentRequest:
		target, err := parseAddrText(rest)
		if err != nil {
			return RegisterBody{}, err
		}
		return RegisterBody{Intent: intent, Target: target}, nil
	default:
		if string(rest) != ackText {
			return RegisterBody{}, fmt.Errorf("%w: register response %q", ErrMalformedBody, rest)
		}
		return RegisterBody{Intent: intent}, nil
	}
}

// AdvertiseBody is the decoded view of an Advertise packet body.
type AdvertiseBody struct {
	Intent    Intent
	Neighbour Addr // response only
}

func ParseAdvertiseBody(body []byte) (AdvertiseBody, error) {
	intent, rest, err := splitIntent(body)
	if err != nil {
		return AdvertiseBody{}, err
	}
	switch intent {
	case IntentRequest:
		if len(rest) != 0 {
			return AdvertiseBody{}, fmt.Errorf("%w: advertise request carries %d extra bytes", ErrMalformedBody, len(rest))
		}
		return AdvertiseBody{Intent: intent}, nil
	default:
		neighbour, err := parseAddrText(rest)
		if err != nil {
			return AdvertiseBody{}, err
		}
		return AdvertiseBody{Intent: intent, Neighbour: neighbour}, nil
	}
}

// ParseJoinBody checks the fixed JOIN literal. Join carries no other
// payload; the sender is identified by the header source address.
func ParseJoinBody(body []byte) error {
	if string(body) != joinText {
		return fmt.Errorf("%w: join body %q", ErrMalformedBody, body)
	}
	return nil
}

// MessageText returns the broadcast text of a Message body.
func MessageText(body []byte) string {
	return string(body)
}

// ReunionBody is the decoded view of a Reunion packet body.
type ReunionBody struct {
	Intent Intent
	Path   Path
}

func ParseReunionBody(body []byte) (ReunionBody, error) {
	intent, rest, err := splitIntent(body)
	if err != nil {
		return ReunionBody{}, err
	}
	if len(rest) < reunionCountLen {
		return ReunionBody{}, fmt.Errorf("%w: reunion body missing entry count", ErrMalformedBody)
	}
	count, err := strconv.Atoi(string(rest[:reunionCountLen]))
	if err != nil || count < 0 {
		return ReunionBody{}, fmt.Errorf("%w: reunion entry count %q", ErrMalformedBody, rest[:reunionCountLen])
	}
	rest = rest[reunionCountLen:]
	if len(rest) != count*addrTextLen {
		return ReunionBody{}, fmt.Errorf(
			"%w: reunion declares %d entries, carries %d bytes",
			ErrMalformedBody, count, len(rest),
		)
	}
	path := make(Path, 0, count)
	for i := 0; i < count; i++ {
		entry, err := parseAddrText(rest[i*addrTextLen : (i+1)*addrTextLen])
		if err != nil {
			return ReunionBody{}, err
		}
		path = append(path, entry)
	}
	return ReunionBody{Intent: intent, Path: path}, nil
}
