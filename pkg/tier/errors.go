package tier

import "errors"

var (
	// ErrObjectNotFound is returned when a tier does not hold the object.
	ErrObjectNotFound = errors.New("object not found")

	// ErrRemoteNotVerified is returned by DeleteLocal when the remote copy is
	// missing or its size differs from the local one. Nothing is deleted.
	ErrRemoteNotVerified = errors.New("remote copy not verified")

	// ErrDigestMismatch is returned when pulled bytes do not hash to the
	// object's content hash. The partial local copy is discarded.
	ErrDigestMismatch = errors.New("content digest mismatch")

	// ErrStoreClosed is returned by operations on a closed tier.
	ErrStoreClosed = errors.New("tier is closed")
)
