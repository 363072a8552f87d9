// Package location defines the object location state machine and the
// Store that persists one ObjectRecord per content hash.
package location

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Location is the tier state of a content hash. The integer values are
// persisted and must not change.
type Location int

const (
	// LocationError means the location is unknown or inconsistent.
	LocationError Location = -1
	// LocationLocal means the bytes exist only on local storage.
	LocationLocal Location = 0
	// LocationDuplicated means the bytes exist both locally and remotely.
	LocationDuplicated Location = 1
	// LocationRemote means the local copy is absent and only the remote one exists.
	LocationRemote Location = 2
)

// All lists every valid location, in persisted order.
var All = []Location{LocationError, LocationLocal, LocationDuplicated, LocationRemote}

// Valid reports whether l is one of the four known states.
func (l Location) Valid() bool {
	return l >= LocationError && l <= LocationRemote
}

func (l Location) String() string {
	switch l {
	case LocationError:
		return "ERROR"
	case LocationLocal:
		return "LOCAL"
	case LocationDuplicated:
		return "DUPLICATED"
	case LocationRemote:
		return "REMOTE"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// ParseLocation parses a location name, case-insensitively.
func ParseLocation(s string) (Location, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LocationError, nil
	case "LOCAL":
		return LocationLocal, nil
	case "DUPLICATED":
		return LocationDuplicated, nil
	case "REMOTE":
		return LocationRemote, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLocation, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Location) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLocation, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Location) UnmarshalText(b []byte) error {
	v, err := ParseLocation(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ContentHash is the lowercase hex digest identifying an object's bytes.
type ContentHash string

// Validate checks that h is a non-empty, even-length lowercase hex string of
// at least 4 characters (the local tier fans out on the first two bytes).
func (h ContentHash) Validate() error {
	s := string(h)
	if len(s) < 4 || len(s)%2 != 0 || strings.ToLower(s) != s {
		return fmt.Errorf("%w: %q", ErrInvalidContentHash, s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidContentHash, s)
	}
	return nil
}

func (h ContentHash) String() string { return string(h) }

// ObjectRecord is the location record of one distinct content hash.
type ObjectRecord struct {
	ContentHash ContentHash `json:"contenthash"`
	FileSize    int64       `json:"filesize"`
	Location    Location    `json:"location"`
	// TimeDuplicated is set on entry into LocationDuplicated and retained
	// afterwards. Zero when the object was never duplicated.
	TimeDuplicated time.Time `json:"timeduplicated,omitzero"`
}

// Validate checks the record's hash and location.
func (r *ObjectRecord) Validate() error {
	if err := r.ContentHash.Validate(); err != nil {
		return err
	}
	if !r.Location.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLocation, int(r.Location))
	}
	if r.FileSize < 0 {
		return fmt.Errorf("negative filesize %d for %s", r.FileSize, r.ContentHash)
	}
	return nil
}

// Transition applies next to r at time now, maintaining TimeDuplicated.
func (r *ObjectRecord) Transition(next Location, now time.Time) {
	if next == LocationDuplicated && r.Location != LocationDuplicated {
		r.TimeDuplicated = now
	}
	r.Location = next
}

// File is one row of the file catalog. Several files may share a hash.
type File struct {
	ID          int64       `json:"id"`
	ContentHash ContentHash `json:"contenthash"`
	FileSize    int64       `json:"filesize"`
	FileName    string      `json:"filename"`
}

// Candidate is a content hash eligible for a transition, with the largest
// size any catalog file reports for it.
type Candidate struct {
	ContentHash ContentHash
	FileSize    int64
}

// LocationSummary aggregates the records in one location.
type LocationSummary struct {
	Objects int64 `json:"objects"`
	Bytes   int64 `json:"bytes"`
}
