package location

import (
	"context"
	"fmt"
	"time"
)

// CandidateQuery is the predicate of a candidate selection. Only non-nil
// fields constrain the result.
//
// The query joins the file catalog against the object records on content
// hash, groups by hash and keeps MAX(filesize). Hashes with no catalog file
// are never candidates. Results are ordered by content hash.
type CandidateQuery struct {
	// Location is required.
	Location Location

	// DuplicatedBefore keeps records whose TimeDuplicated is at or before it.
	// Records with a zero TimeDuplicated never match.
	DuplicatedBefore *time.Time

	// MaxFileSize keeps hashes whose MAX(filesize) is at or below it.
	MaxFileSize *int64

	// Limit caps the number of candidates. Zero means no limit.
	Limit int
}

// Validate checks the query.
func (q CandidateQuery) Validate() error {
	if !q.Location.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLocation, int(q.Location))
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

// Matches reports whether a record with the given grouped size satisfies q.
// In-process backends use it to evaluate the predicate.
func (q CandidateQuery) Matches(rec *ObjectRecord, maxSize int64) bool {
	if rec.Location != q.Location {
		return false
	}
	if q.DuplicatedBefore != nil {
		if rec.TimeDuplicated.IsZero() || rec.TimeDuplicated.After(*q.DuplicatedBefore) {
			return false
		}
	}
	if q.MaxFileSize != nil && maxSize > *q.MaxFileSize {
		return false
	}
	return true
}

// Store persists object location records and the file catalog joined
// against them.
//
// UpdateLocation is a compare-and-set: it writes next only when the stored
// location still equals expected, and reports whether it did. A missing
// record is reported as (false, nil). Entering LocationDuplicated from any
// other state stamps TimeDuplicated with now; otherwise TimeDuplicated is
// retained.
type Store interface {
	FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
	UpdateLocation(ctx context.Context, hash ContentHash, expected, next Location, now time.Time) (bool, error)

	GetRecord(ctx context.Context, hash ContentHash) (*ObjectRecord, error)
	PutRecord(ctx context.Context, rec ObjectRecord) error
	AddFile(ctx context.Context, f File) error

	CountByLocation(ctx context.Context) (map[Location]LocationSummary, error)

	Healthcheck(ctx context.Context) error
	Close() error
}
