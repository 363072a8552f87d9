// Package badger is a location.Store on an embedded BadgerDB.
//
// Key layout:
//   - rec:{hash}        JSON ObjectRecord
//   - file:{hash}:{id}  JSON File, id zero-padded so files of one hash are adjacent
//   - seq:file          file ID sequence
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/location"
)

const (
	recordPrefix = "rec:"
	filePrefix   = "file:"
	fileSeqKey   = "seq:file"

	// maxConflictRetries bounds retries of a CAS transaction that lost an
	// optimistic-concurrency race inside Badger.
	maxConflictRetries = 5
)

// Config configures the Badger store.
type Config struct {
	// Path is the database directory. Empty with InMemory set runs without disk.
	Path     string `mapstructure:"path" yaml:"path"`
	InMemory bool   `mapstructure:"in_memory" yaml:"in_memory,omitempty"`
}

// Store is a location.Store backed by BadgerDB.
type Store struct {
	db     *badgerdb.DB
	seq    *badgerdb.Sequence
	mu     sync.RWMutex
	closed bool
}

var _ location.Store = (*Store)(nil)

// New opens (or creates) the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("badger location store: path is required")
	}

	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database %q: %w", cfg.Path, err)
	}

	seq, err := db.GetSequence([]byte(fileSeqKey), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open file sequence: %w", err)
	}

	logger.Info("Badger location store opened", logger.KeyPath, cfg.Path, "in_memory", cfg.InMemory)
	return &Store{db: db, seq: seq}, nil
}

func recordKey(h location.ContentHash) []byte { return []byte(recordPrefix + string(h)) }

func fileKey(h location.ContentHash, id int64) []byte {
	return fmt.Appendf(nil, "%s%s:%020d", filePrefix, h, id)
}

// hashFromFileKey extracts the hash from "file:{hash}:{id}".
func hashFromFileKey(k []byte) location.ContentHash {
	s := strings.TrimPrefix(string(k), filePrefix)
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return location.ContentHash(s)
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return location.ErrStoreClosed
	}
	return nil
}

func getRecord(txn *badgerdb.Txn, h location.ContentHash) (*location.ObjectRecord, error) {
	item, err := txn.Get(recordKey(h))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, location.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec location.ObjectRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", h, err)
	}
	return &rec, nil
}

func putRecord(txn *badgerdb.Txn, rec *location.ObjectRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return txn.Set(recordKey(rec.ContentHash), val)
}

// FindCandidates walks the file index in key order, so each hash's files are
// contiguous and the output is sorted by hash.
func (s *Store) FindCandidates(ctx context.Context, q location.CandidateQuery) ([]location.Candidate, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	out := make([]location.Candidate, 0)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(filePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		var (
			cur     location.ContentHash
			maxSize int64
		)
		flush := func() error {
			if cur == "" {
				return nil
			}
			rec, err := getRecord(txn, cur)
			if errors.Is(err, location.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if q.Matches(rec, maxSize) {
				out = append(out, location.Candidate{ContentHash: cur, FileSize: maxSize})
			}
			return nil
		}

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			h := hashFromFileKey(item.Key())
			if h != cur {
				if err := flush(); err != nil {
					return err
				}
				cur, maxSize = h, -1
			}
			var f location.File
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			}); err != nil {
				return fmt.Errorf("decode file %s: %w", item.Key(), err)
			}
			if f.FileSize > maxSize {
				maxSize = f.FileSize
			}
		}
		return flush()
	})
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	// Key order differs from hash order for hashes of mixed length, so the
	// limit applies only after sorting.
	slices.SortFunc(out, func(a, b location.Candidate) int {
		return strings.Compare(string(a.ContentHash), string(b.ContentHash))
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// UpdateLocation runs the compare-and-set in one read-write transaction,
// retrying when Badger reports a write conflict.
func (s *Store) UpdateLocation(ctx context.Context, hash location.ContentHash, expected, next location.Location, now time.Time) (bool, error) {
	if !next.Valid() {
		return false, location.ErrInvalidLocation
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return false, err
	}

	for attempt := 0; ; attempt++ {
		var applied bool
		err := s.db.Update(func(txn *badgerdb.Txn) error {
			rec, err := getRecord(txn, hash)
			if errors.Is(err, location.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if rec.Location != expected {
				return nil
			}
			rec.Transition(next, now)
			applied = true
			return putRecord(txn, rec)
		})
		if errors.Is(err, badgerdb.ErrConflict) && attempt < maxConflictRetries {
			logger.Debug("Badger CAS conflict, retrying", logger.KeyContentHash, hash, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return false, fmt.Errorf("update location of %s: %w", hash, err)
		}
		return applied, nil
	}
}

func (s *Store) GetRecord(ctx context.Context, hash location.ContentHash) (*location.ObjectRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var rec *location.ObjectRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		var err error
		rec, err = getRecord(txn, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) PutRecord(ctx context.Context, rec location.ObjectRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return putRecord(txn, &rec)
	})
}

func (s *Store) AddFile(ctx context.Context, f location.File) error {
	if err := f.ContentHash.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	if f.ID == 0 {
		id, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("allocate file id: %w", err)
		}
		// Sequences start at 0; catalog IDs start at 1.
		f.ID = int64(id) + 1
	}
	val, err := json.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal file: %w", err)
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(fileKey(f.ContentHash, f.ID), val)
	})
}

func (s *Store) CountByLocation(ctx context.Context) (map[location.Location]location.LocationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	out := make(map[location.Location]location.LocationSummary)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec location.ObjectRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			sum := out[rec.Location]
			sum.Objects++
			sum.Bytes += rec.FileSize
			out[rec.Location] = sum
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count by location: %w", err)
	}
	return out, nil
}

// Healthcheck opens a read transaction.
func (s *Store) Healthcheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.seq.Release(); err != nil {
		logger.Warn("Release badger sequence", logger.Err(err))
	}
	return s.db.Close()
}
