package storage

import "errors"

var (
	// ErrAPIKeyNotFound is returned when an API key is not found
	ErrAPIKeyNotFound = errors.New("API key not found")

	// ErrAdminTokenNotFound is returned when an admin token is not found
	ErrAdminTokenNotFound = errors.New("admin token not found")
)
