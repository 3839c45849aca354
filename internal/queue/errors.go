package queue

import "errors"

var (
	// ErrQueueClosed is returned by every operation after Close.
	ErrQueueClosed = errors.New("queue: closed")

	// ErrItemNotFound means no dead letter carries the requested id.
	ErrItemNotFound = errors.New("queue: dead letter not found")

	// ErrMaxRetriesExceeded wraps the last write error of an item moved to the
	// dead letter queue.
	ErrMaxRetriesExceeded = errors.New("queue: max retries exceeded")
)
