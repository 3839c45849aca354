package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointNotFound is matched by every *NotFoundError
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrDuplicateEndpoint is returned by Register when the identity is taken
	ErrDuplicateEndpoint = errors.New("endpoint already registered")

	// ErrInvalidEndpoint is returned for endpoints missing required fields
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// NotFoundError reports the path that failed to resolve.
type NotFoundError struct {
	Path    string
	Method  string
	Version string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("endpoint not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error {
	return ErrEndpointNotFound
}
