package auth

import "errors"

var (
	// ErrMalformedCredential is returned when a token cannot be decoded into claims.
	ErrMalformedCredential = errors.New("auth: malformed credential")
	// ErrInvalidToken is returned when a token fails signature or issuer checks.
	ErrInvalidToken = errors.New("auth: invalid token")
)
