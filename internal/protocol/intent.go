package protocol

import "fmt"

// Intent is the request/response discriminator carried as a 3-byte tag in
// Register, Advertise, and Reunion bodies. It is a closed set: unknown tags
// are rejected on decode rather than carried as free text.
type Intent uint8

const (
	IntentRequest Intent = iota + 1
	IntentResponse
)

const intentTagLen = 3

func (i Intent) Tag() string {
	switch i {
	case IntentRequest:
		return "REQ"
	case IntentResponse:
		return "RES"
	default:
		return fmt.Sprintf("intent(%d)", uint8(i))
	}
}

func (i Intent) String() string {
	return i.Tag()
}

func (i Intent) valid() bool {
	return i == IntentRequest || i == IntentResponse
}

// ParseIntent decodes one 3-byte intent tag.
func ParseIntent(tag []byte) (Intent, error) {
	switch string(tag) {
	case "REQ":
		return IntentRequest, nil
	case "RES":
		return IntentResponse, nil
	default:
		return 0, fmt.Errorf("%w: tag %q", ErrUnsupportedIntent, tag)
	}
}

// splitIntent peels the leading intent tag off a body and returns the rest.
func splitIntent(body []byte) (Intent, []byte, error) {
	if len(body) < intentTagLen {
		return 0, nil, fmt.Errorf("%w: %d bytes before intent tag", ErrMalformedBody, len(body))
	}
	intent, err := ParseIntent(body[:intentTagLen])
	if err != nil {
		return 0, nil, err
	}
	return intent, body[intentTagLen:], nil
}
