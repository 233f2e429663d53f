package auth

import (
	"context"
	"errors"
)

// ErrNoCredential is returned when no bearer token is available.
var ErrNoCredential = errors.New("no credential configured")

// TokenProvider supplies the bearer credential used for the socket and REST calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}
