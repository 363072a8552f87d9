package manipulator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/tierkeeper/pkg/location"
	locmem "github.com/marmos91/tierkeeper/pkg/location/memory"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
	"github.com/marmos91/tierkeeper/pkg/tier"
	tiermem "github.com/marmos91/tierkeeper/pkg/tier/memory"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedAdapter returns canned transition and probe outcomes. Hooks run
// before the canned result is returned.
type scriptedAdapter struct {
	mu sync.Mutex

	deleteErr map[location.ContentHash]error
	copyErr   map[location.ContentHash]error
	probe     map[location.ContentHash]location.Location
	probeErr  map[location.ContentHash]error

	onTransition func(hash location.ContentHash)

	deletes []location.ContentHash
	copies  []location.ContentHash
	probes  []location.ContentHash
}

func newScriptedAdapter() *scriptedAdapter {
	return &scriptedAdapter{
		deleteErr: make(map[location.ContentHash]error),
		copyErr:   make(map[location.ContentHash]error),
		probe:     make(map[location.ContentHash]location.Location),
		probeErr:  make(map[location.ContentHash]error),
	}
}

var _ tier.Adapter = (*scriptedAdapter)(nil)

func (a *scriptedAdapter) DeleteLocal(_ context.Context, hash location.ContentHash) error {
	a.mu.Lock()
	a.deletes = append(a.deletes, hash)
	hook := a.onTransition
	err := a.deleteErr[hash]
	a.mu.Unlock()
	if hook != nil {
		hook(hash)
	}
	return err
}

func (a *scriptedAdapter) CopyRemoteToLocal(_ context.Context, hash location.ContentHash) error {
	a.mu.Lock()
	a.copies = append(a.copies, hash)
	hook := a.onTransition
	err := a.copyErr[hash]
	a.mu.Unlock()
	if hook != nil {
		hook(hash)
	}
	return err
}

func (a *scriptedAdapter) ProbeLocation(_ context.Context, hash location.ContentHash) (location.Location, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probes = append(a.probes, hash)
	if err := a.probeErr[hash]; err != nil {
		return location.LocationError, err
	}
	loc, ok := a.probe[hash]
	if !ok {
		return location.LocationError, nil
	}
	return loc, nil
}

// recordingReporter counts Reporter calls.
type recordingReporter struct {
	starts, ends, flushes int
	queryResults          []int
	transitions           []int64
}

func (r *recordingReporter) StartTiming()  { r.starts++ }
func (r *recordingReporter) EndTiming()    { r.ends++ }
func (r *recordingReporter) FlushSummary() { r.flushes++ }

func (r *recordingReporter) RecordQueryResult(count int) {
	r.queryResults = append(r.queryResults, count)
}

func (r *recordingReporter) RecordTransition(bytes int64) {
	r.transitions = append(r.transitions, bytes)
}

// hookedStore wraps a store and counts or overrides selected calls.
type hookedStore struct {
	location.Store

	mu        sync.Mutex
	finds     int
	updates   int
	updateErr error

	// lastUpdateCtxErr is ctx.Err() as seen by the latest UpdateLocation.
	lastUpdateCtxErr error
}

func (s *hookedStore) FindCandidates(ctx context.Context, q location.CandidateQuery) ([]location.Candidate, error) {
	s.mu.Lock()
	s.finds++
	s.mu.Unlock()
	return s.Store.FindCandidates(ctx, q)
}

func (s *hookedStore) UpdateLocation(ctx context.Context, hash location.ContentHash, expected, next location.Location, now time.Time) (bool, error) {
	s.mu.Lock()
	s.updates++
	s.lastUpdateCtxErr = ctx.Err()
	err := s.updateErr
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.Store.UpdateLocation(ctx, hash, expected, next, now)
}

// fixture bundles a memory location store and two memory tiers behind the
// real tiered adapter.
type fixture struct {
	store   *hookedStore
	local   *tiermem.Store
	remote  *tiermem.Store
	adapter tier.Adapter
	clock   *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := locmem.New()
	t.Cleanup(func() { _ = store.Close() })

	local := tiermem.New("local")
	remote := tiermem.New("remote")

	return &fixture{
		store:   &hookedStore{Store: store},
		local:   local,
		remote:  remote,
		adapter: tier.New(local, remote, tier.Options{}),
		clock:   newFakeClock(),
	}
}

func (f *fixture) deps(adapter tier.Adapter) manipulator.Deps {
	if adapter == nil {
		adapter = f.adapter
	}
	return manipulator.Deps{
		Store:   f.store,
		Adapter: adapter,
		Clock:   f.clock,
	}
}

// seed stores a record and one catalog file of the given size.
func (f *fixture) seed(t *testing.T, hash location.ContentHash, size int64, loc location.Location, duplicated time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.PutRecord(ctx, location.ObjectRecord{
		ContentHash:    hash,
		FileSize:       size,
		Location:       loc,
		TimeDuplicated: duplicated,
	}))
	require.NoError(t, f.store.AddFile(ctx, location.File{
		ContentHash: hash,
		FileSize:    size,
		FileName:    string(hash) + ".bin",
	}))
}

// seedBytes places size bytes for hash in the given tiers.
func seedBytes(size int64, hash location.ContentHash, tiers ...*tiermem.Store) {
	data := make([]byte, size)
	for _, s := range tiers {
		s.PutBytes(hash, data)
	}
}

func (f *fixture) location(t *testing.T, hash location.ContentHash) location.Location {
	t.Helper()
	rec, err := f.store.GetRecord(context.Background(), hash)
	require.NoError(t, err)
	return rec.Location
}

func (f *fixture) record(t *testing.T, hash location.ContentHash) *location.ObjectRecord {
	t.Helper()
	rec, err := f.store.GetRecord(context.Background(), hash)
	require.NoError(t, err)
	return rec
}

func hashes(cs []location.Candidate) []location.ContentHash {
	out := make([]location.ContentHash, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ContentHash)
	}
	return out
}
