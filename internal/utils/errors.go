package utils

import (
	"errors"
	"strings"
)

// recoverableErrors are message prefixes of upstream failures worth retrying.
var recoverableErrors = []string{
	"upstream returned status 5",
	"upstream returned status 429",
	"upstream unreachable",
}

// IsRecoverableError checks if an error, or any error it wraps, is a
// transient upstream failure.
func IsRecoverableError(err error) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		msg := err.Error()
		for _, recoverable := range recoverableErrors {
			if strings.HasPrefix(msg, recoverable) {
				return true
			}
		}
	}
	return false
}
