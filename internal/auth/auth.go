// Package auth guards the admin control surface.
//
// It holds token validation only; route policy stays with the caller.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator checks a presented admin token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts a single shared token, compared in constant time.
// An empty configured token denies everything; callers skip the gate
// entirely when no token is set.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// FromBearer extracts the token from an Authorization header value.
// It returns "" when the value is not a bearer credential.
func FromBearer(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
