package auth

import "errors"

// Sentinel errors for credential verification, checkable with errors.Is().
var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("auth: missing token")

	// ErrInvalidToken indicates the token failed signature or expiry checks.
	ErrInvalidToken = errors.New("auth: invalid token")
)
