package auth

import "errors"

var (
	// ErrKeyNotFound is returned by stores when no record matches a key
	ErrKeyNotFound = errors.New("api key not found")

	// ErrInvalidAPIKey is returned by the validator for unknown, revoked or expired keys
	ErrInvalidAPIKey = errors.New("invalid api key")

	// ErrInvalidCredentials is returned when admin credentials do not verify
	ErrInvalidCredentials = errors.New("invalid credentials")
)
