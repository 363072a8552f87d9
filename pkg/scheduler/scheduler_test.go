package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tierkeeper/pkg/location"
	locmem "github.com/marmos91/tierkeeper/pkg/location/memory"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
	"github.com/marmos91/tierkeeper/pkg/scheduler"
	"github.com/marmos91/tierkeeper/pkg/tier"
	tiermem "github.com/marmos91/tierkeeper/pkg/tier/memory"
)

type recorder struct {
	mu   sync.Mutex
	runs []manipulator.RunResult
	errs []error
}

func (r *recorder) Record(_ context.Context, res manipulator.RunResult, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, res)
	r.errs = append(r.errs, err)
	return nil
}

func (r *recorder) kinds() []manipulator.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]manipulator.Action, 0, len(r.runs))
	for _, res := range r.runs {
		out = append(out, res.Action)
	}
	return out
}

func (r *recorder) count(a manipulator.Action) int {
	n := 0
	for _, k := range r.kinds() {
		if k == a {
			n++
		}
	}
	return n
}

type gauge struct {
	mu     sync.Mutex
	last   map[location.Location]location.LocationSummary
	events int
}

func (g *gauge) Set(counts map[location.Location]location.LocationSummary) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = counts
	g.events++
}

func (g *gauge) snapshot() map[location.Location]location.LocationSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// blockingManipulator selects one candidate and blocks in Execute until ctx
// is canceled.
type blockingManipulator struct {
	entered chan struct{}
	once    sync.Once
}

func (b *blockingManipulator) Action() manipulator.Action { return manipulator.ActionRecover }

func (b *blockingManipulator) GetCandidates(context.Context) ([]location.Candidate, error) {
	return []location.Candidate{{ContentHash: "abcd", FileSize: 1}}, nil
}

func (b *blockingManipulator) Execute(ctx context.Context, _ []location.Candidate, _ time.Time) (manipulator.RunStats, error) {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return manipulator.RunStats{Canceled: true}, nil
}

type failingManipulator struct{}

func (failingManipulator) Action() manipulator.Action { return manipulator.ActionPull }

func (failingManipulator) GetCandidates(context.Context) ([]location.Candidate, error) {
	return nil, errors.New("store unavailable")
}

func (failingManipulator) Execute(context.Context, []location.Candidate, time.Time) (manipulator.RunStats, error) {
	return manipulator.RunStats{}, nil
}

func newDeps(t *testing.T) (manipulator.Deps, *locmem.Store, *tiermem.Store, *tiermem.Store) {
	t.Helper()
	store := locmem.New()
	t.Cleanup(func() { _ = store.Close() })
	local := tiermem.New("local")
	remote := tiermem.New("remote")
	return manipulator.Deps{
		Store:   store,
		Adapter: tier.New(local, remote, tier.Options{}),
	}, store, local, remote
}

func TestNew_Validation(t *testing.T) {
	deps, store, _, _ := newDeps(t)
	rec, err := manipulator.NewRecoverer(deps)
	require.NoError(t, err)

	_, err = scheduler.New(scheduler.Config{}, scheduler.Job{Manipulator: rec, Interval: time.Second})
	assert.Error(t, err, "store is required")

	_, err = scheduler.New(scheduler.Config{Store: store})
	assert.Error(t, err, "at least one job is required")

	_, err = scheduler.New(scheduler.Config{Store: store}, scheduler.Job{Manipulator: rec})
	assert.ErrorContains(t, err, "recoverer interval must be positive")
}

func TestScheduler_RunsJobsAndRecords(t *testing.T) {
	ctx := context.Background()
	deps, store, local, remote := newDeps(t)

	// One broken record for the recoverer to repair.
	require.NoError(t, store.PutRecord(ctx, location.ObjectRecord{
		ContentHash: "a1b2",
		FileSize:    4,
		Location:    location.LocationError,
	}))
	require.NoError(t, store.AddFile(ctx, location.File{ContentHash: "a1b2", FileSize: 4, FileName: "a.bin"}))
	local.PutBytes("a1b2", []byte("data"))
	remote.PutBytes("a1b2", []byte("data"))

	rec, err := manipulator.NewRecoverer(deps)
	require.NoError(t, err)
	del, err := manipulator.NewDeleter(manipulator.DeleterConfig{ConsistencyDelay: time.Hour}, deps)
	require.NoError(t, err)

	history := &recorder{}
	locations := &gauge{}
	s, err := scheduler.New(scheduler.Config{
		Store:          store,
		MaxRunDuration: time.Second,
		History:        history,
		Locations:      locations,
	},
		scheduler.Job{Manipulator: rec, Interval: 20 * time.Millisecond},
		scheduler.Job{Manipulator: del, Interval: time.Hour},
	)
	require.NoError(t, err)

	s.Start(ctx)
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool {
		return history.count(manipulator.ActionRecover) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	// Both jobs run at start in job order; the deleter does not run again
	// within its interval.
	kinds := history.kinds()
	assert.Equal(t, manipulator.ActionRecover, kinds[0])
	assert.Equal(t, manipulator.ActionDelete, kinds[1])
	assert.Equal(t, 1, history.count(manipulator.ActionDelete))

	rec2, err := store.GetRecord(ctx, "a1b2")
	require.NoError(t, err)
	assert.Equal(t, location.LocationDuplicated, rec2.Location)

	counts := locations.snapshot()
	require.NotNil(t, counts)
	assert.Equal(t, int64(1), counts[location.LocationDuplicated].Objects)

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "recoverer", status[0].Manipulator)
	assert.GreaterOrEqual(t, status[0].Runs, 3)
	require.NotNil(t, status[0].LastRun)
	assert.Equal(t, time.Hour, status[1].Interval)
	assert.True(t, status[1].NextRun.After(time.Now()))
}

func TestScheduler_RecordsFailures(t *testing.T) {
	_, store, _, _ := newDeps(t)

	history := &recorder{}
	s, err := scheduler.New(scheduler.Config{Store: store, History: history},
		scheduler.Job{Manipulator: failingManipulator{}, Interval: time.Hour},
	)
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool {
		return history.count(manipulator.ActionPull) == 1
	}, time.Second, 5*time.Millisecond)

	status := s.Status()[0]
	assert.Equal(t, 1, status.Failures)
	assert.Contains(t, status.LastError, "store unavailable")
	assert.False(t, status.LastErrorAt.IsZero())

	history.mu.Lock()
	assert.Error(t, history.errs[0])
	history.mu.Unlock()
}

func TestScheduler_StopCancelsRunInProgress(t *testing.T) {
	_, store, _, _ := newDeps(t)

	m := &blockingManipulator{entered: make(chan struct{})}
	history := &recorder{}
	s, err := scheduler.New(scheduler.Config{Store: store, History: history, MaxRunDuration: time.Hour},
		scheduler.Job{Manipulator: m, Interval: time.Hour},
	)
	require.NoError(t, err)

	s.Start(context.Background())

	select {
	case <-m.entered:
	case <-time.After(time.Second):
		t.Fatal("run did not start")
	}

	s.Stop(time.Second)

	select {
	case <-s.Done():
	default:
		t.Fatal("scheduler loop still running after Stop")
	}

	// The interrupted run is still recorded.
	require.Len(t, history.kinds(), 1)
	status := s.Status()[0]
	require.NotNil(t, status.LastRun)
	assert.True(t, status.LastRun.Stats.Canceled)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	deps, store, _, _ := newDeps(t)
	rec, err := manipulator.NewRecoverer(deps)
	require.NoError(t, err)

	s, err := scheduler.New(scheduler.Config{Store: store}, scheduler.Job{Manipulator: rec, Interval: time.Minute})
	require.NoError(t, err)

	s.Stop(10 * time.Millisecond)
	assert.Empty(t, s.Status()[0].LastError)
}
