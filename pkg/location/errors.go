package location

import "errors"

var (
	// ErrRecordNotFound is returned when no record exists for a content hash.
	ErrRecordNotFound = errors.New("location record not found")

	// ErrInvalidContentHash is returned for malformed content hashes.
	ErrInvalidContentHash = errors.New("invalid content hash")

	// ErrInvalidLocation is returned for location values outside the state machine.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("location store is closed")
)
