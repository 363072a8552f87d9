package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/location"
	locmem "github.com/marmos91/tierkeeper/pkg/location/memory"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
	"github.com/marmos91/tierkeeper/pkg/metrics"
	"github.com/marmos91/tierkeeper/pkg/scheduler"
	"github.com/marmos91/tierkeeper/pkg/tier"
	tiermem "github.com/marmos91/tierkeeper/pkg/tier/memory"
)

type staticJobs []scheduler.JobStatus

func (s staticJobs) Status() []scheduler.JobStatus { return s }

type fixture struct {
	store   *locmem.Store
	local   *tiermem.Store
	remote  *tiermem.Store
	history *history.GORMStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := locmem.New()
	t.Cleanup(func() { _ = store.Close() })

	hist, err := history.New(&history.Config{
		Type:   history.DatabaseTypeSQLite,
		SQLite: history.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	for hash, rec := range map[location.ContentHash]location.Location{
		"aa01": location.LocationLocal,
		"aa02": location.LocationDuplicated,
		"aa03": location.LocationDuplicated,
		"aa04": location.LocationRemote,
	} {
		require.NoError(t, store.PutRecord(ctx, location.ObjectRecord{
			ContentHash: hash,
			FileSize:    100,
			Location:    rec,
		}))
	}

	return &fixture{
		store:   store,
		local:   tiermem.New("local"),
		remote:  tiermem.New("remote"),
		history: hist,
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Store:   f.store,
		Tiers:   tier.New(f.local, f.remote, tier.Options{}),
		History: f.history,
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestNew_DefaultConfig(t *testing.T) {
	f := newFixture(t)
	s, err := New(Config{}, f.deps())
	require.NoError(t, err)
	assert.Equal(t, 9090, s.Port())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.deps())

	t.Run("healthy", func(t *testing.T) {
		rec := get(t, router, "/healthz")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		require.Len(t, resp.Components, 3)
		assert.Equal(t, "location_store", resp.Components[0].Name)
		assert.Equal(t, "tiers", resp.Components[1].Name)
		assert.Equal(t, "history", resp.Components[2].Name)
	})

	t.Run("unhealthy tier", func(t *testing.T) {
		f.remote.Fail("health", errors.New("bucket unreachable"))
		defer f.remote.Fail("health", nil)

		rec := get(t, router, "/healthz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "unhealthy", resp.Components[1].Status)
		assert.Contains(t, resp.Components[1].Error, "bucket unreachable")
		assert.Equal(t, "healthy", resp.Components[0].Status)
	})
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	require.NoError(t, f.history.Record(ctx, manipulator.RunResult{
		RunID:      uuid.NewString(),
		Action:     manipulator.ActionPull,
		StartedAt:  started,
		Deadline:   started.Add(5 * time.Minute),
		Candidates: 2,
		Stats:      manipulator.RunStats{Processed: 2, TotalBytes: 200},
	}, nil))

	deps := f.deps()
	deps.Scheduler = staticJobs{{
		Action:      manipulator.ActionPull,
		Manipulator: "puller",
		Interval:    time.Hour,
		Runs:        1,
	}}

	rec := get(t, NewRouter(deps), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Locations, len(location.All))
	byLoc := make(map[location.Location]location.LocationSummary)
	for _, c := range resp.Locations {
		byLoc[c.Location] = c.LocationSummary
	}
	assert.Equal(t, int64(0), byLoc[location.LocationError].Objects)
	assert.Equal(t, int64(1), byLoc[location.LocationLocal].Objects)
	assert.Equal(t, int64(2), byLoc[location.LocationDuplicated].Objects)
	assert.Equal(t, int64(200), byLoc[location.LocationDuplicated].Bytes)
	assert.Equal(t, int64(1), byLoc[location.LocationRemote].Objects)

	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "puller", resp.Jobs[0].Manipulator)

	require.Len(t, resp.LastRuns, 1)
	assert.Equal(t, "puller", resp.LastRuns[0].Manipulator)
	assert.Equal(t, 2, resp.LastRuns[0].Processed)
}

func TestStatus_WithoutOptionalDeps(t *testing.T) {
	f := newFixture(t)

	rec := get(t, NewRouter(Deps{Store: f.store}), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "locations")
	assert.NotContains(t, raw, "jobs")
	assert.NotContains(t, raw, "last_runs")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	router := NewRouter(f.deps())

	metrics.Reset()
	t.Cleanup(metrics.Reset)

	rec := get(t, router, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics disabled")

	metrics.InitRegistry()
	rec = get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRootRedirectsToStatus(t *testing.T) {
	f := newFixture(t)
	rec := get(t, NewRouter(f.deps()), "/")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/status", rec.Header().Get("Location"))
}

func TestServer_Lifecycle(t *testing.T) {
	f := newFixture(t)
	s, err := New(Config{}, f.deps())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
