package protocol

import "errors"

var (
	ErrMalformedHeader   = errors.New("protocol: malformed header")
	ErrMalformedBody     = errors.New("protocol: malformed body")
	ErrBodyTooLarge      = errors.New("protocol: body too large")
	ErrFieldOverflow     = errors.New("protocol: field overflow")
	ErrTooManyEntries    = errors.New("protocol: too many path entries")
	ErrUnsupportedIntent = errors.New("protocol: unsupported intent")
	ErrInvalidArgument   = errors.New("protocol: invalid argument")
)
