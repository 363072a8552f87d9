// Package memory is an in-process tier.Tier for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/tier"
)

// Store holds objects in a map.
type Store struct {
	name    string
	mu      sync.RWMutex
	objects map[location.ContentHash]entry
	faults  map[string]error
	closed  bool
}

type entry struct {
	data    []byte
	modTime time.Time
}

var _ tier.Tier = (*Store)(nil)

// New creates an empty tier reporting the given name.
func New(name string) *Store {
	return &Store{
		name:    name,
		objects: make(map[location.ContentHash]entry),
		faults:  make(map[string]error),
	}
}

func (s *Store) Name() string { return s.name }

// Fail makes every subsequent call of operation ("stat", "open", "put",
// "delete", "health") return err. A nil err clears the fault.
func (s *Store) Fail(operation string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, operation)
		return
	}
	s.faults[operation] = err
}

// Has reports whether hash is stored.
func (s *Store) Has(hash location.ContentHash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[hash]
	return ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *Store) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return tier.ErrStoreClosed
	}
	return s.faults[op]
}

func (s *Store) Stat(ctx context.Context, hash location.ContentHash) (tier.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "stat"); err != nil {
		return tier.ObjectInfo{}, err
	}
	e, ok := s.objects[hash]
	if !ok {
		return tier.ObjectInfo{}, tier.ErrObjectNotFound
	}
	return tier.ObjectInfo{Size: int64(len(e.data)), ModTime: e.modTime}, nil
}

func (s *Store) Open(ctx context.Context, hash location.ContentHash) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "open"); err != nil {
		return nil, err
	}
	e, ok := s.objects[hash]
	if !ok {
		return nil, tier.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func (s *Store) Put(ctx context.Context, hash location.ContentHash, r io.Reader) (int64, error) {
	s.mu.RLock()
	err := s.check(ctx, "put")
	s.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, tier.ErrStoreClosed
	}
	s.objects[hash] = entry{data: data, modTime: time.Now()}
	return int64(len(data)), nil
}

// PutBytes stores data directly. Test helper.
func (s *Store) PutBytes(hash location.ContentHash, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[hash] = entry{data: bytes.Clone(data), modTime: time.Now()}
}

func (s *Store) Delete(ctx context.Context, hash location.ContentHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "delete"); err != nil {
		return err
	}
	if _, ok := s.objects[hash]; !ok {
		return tier.ErrObjectNotFound
	}
	delete(s.objects, hash)
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(ctx, "health")
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
