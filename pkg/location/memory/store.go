// Package memory is an in-process location.Store. Contents are lost on
// Close; it backs tests and dry runs.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/tierkeeper/pkg/location"
)

// Store is a map-backed location.Store safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[location.ContentHash]location.ObjectRecord
	files   []location.File
	nextID  int64
	closed  bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		records: make(map[location.ContentHash]location.ObjectRecord),
		nextID:  1,
	}
}

var _ location.Store = (*Store)(nil)

func (s *Store) FindCandidates(ctx context.Context, q location.CandidateQuery) ([]location.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, location.ErrStoreClosed
	}

	maxSize := make(map[location.ContentHash]int64)
	for _, f := range s.files {
		if cur, ok := maxSize[f.ContentHash]; !ok || f.FileSize > cur {
			maxSize[f.ContentHash] = f.FileSize
		}
	}

	out := make([]location.Candidate, 0)
	for hash, size := range maxSize {
		rec, ok := s.records[hash]
		if !ok || !q.Matches(&rec, size) {
			continue
		}
		out = append(out, location.Candidate{ContentHash: hash, FileSize: size})
	}
	slices.SortFunc(out, func(a, b location.Candidate) int {
		return strings.Compare(string(a.ContentHash), string(b.ContentHash))
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) UpdateLocation(ctx context.Context, hash location.ContentHash, expected, next location.Location, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !next.Valid() {
		return false, location.ErrInvalidLocation
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, location.ErrStoreClosed
	}

	rec, ok := s.records[hash]
	if !ok || rec.Location != expected {
		return false, nil
	}
	rec.Transition(next, now)
	s.records[hash] = rec
	return true, nil
}

func (s *Store) GetRecord(ctx context.Context, hash location.ContentHash) (*location.ObjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, location.ErrStoreClosed
	}

	rec, ok := s.records[hash]
	if !ok {
		return nil, location.ErrRecordNotFound
	}
	return &rec, nil
}

func (s *Store) PutRecord(ctx context.Context, rec location.ObjectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return location.ErrStoreClosed
	}
	s.records[rec.ContentHash] = rec
	return nil
}

func (s *Store) AddFile(ctx context.Context, f location.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.ContentHash.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return location.ErrStoreClosed
	}
	if f.ID == 0 {
		f.ID = s.nextID
	}
	if f.ID >= s.nextID {
		s.nextID = f.ID + 1
	}
	s.files = append(s.files, f)
	return nil
}

func (s *Store) CountByLocation(ctx context.Context) (map[location.Location]location.LocationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, location.ErrStoreClosed
	}

	out := make(map[location.Location]location.LocationSummary)
	for _, rec := range s.records {
		sum := out[rec.Location]
		sum.Objects++
		sum.Bytes += rec.FileSize
		out[rec.Location] = sum
	}
	return out, nil
}

func (s *Store) Healthcheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return location.ErrStoreClosed
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	s.files = nil
	return nil
}
