// Package locationtest is a conformance suite every location.Store backend
// must pass.
package locationtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tierkeeper/pkg/location"
)

// StoreFactory creates a fresh, empty Store for each test. Use t.TempDir()
// for on-disk state and t.Cleanup() for teardown.
type StoreFactory func(t *testing.T) location.Store

// Fixed-length hashes, sorted: hashA < hashB < hashC < hashD.
const (
	hashA location.ContentHash = "0a1b2c3d4e5f60718293a4b5c6d7e8f901234567"
	hashB location.ContentHash = "5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f5f"
	hashC location.ContentHash = "a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0a0"
	hashD location.ContentHash = "ffeeddccbbaa99887766554433221100ffeeddcc"
)

// Postgres keeps microseconds; whole seconds compare equal everywhere.
var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// RunConformanceSuite runs the full suite against factory.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("Records", func(t *testing.T) { runRecordTests(t, factory) })
	t.Run("UpdateLocation", func(t *testing.T) { runUpdateTests(t, factory) })
	t.Run("FindCandidates", func(t *testing.T) { runCandidateTests(t, factory) })
	t.Run("CountByLocation", func(t *testing.T) { runCountTests(t, factory) })
	t.Run("Lifecycle", func(t *testing.T) { runLifecycleTests(t, factory) })
}

func seed(t *testing.T, s location.Store, rec location.ObjectRecord, sizes ...int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutRecord(ctx, rec))
	for i, size := range sizes {
		require.NoError(t, s.AddFile(ctx, location.File{
			ContentHash: rec.ContentHash,
			FileSize:    size,
			FileName:    string(rec.ContentHash[:min(6, len(rec.ContentHash))]) + "-" + string(rune('a'+i)),
		}))
	}
}

func hashes(cs []location.Candidate) []location.ContentHash {
	out := make([]location.ContentHash, len(cs))
	for i, c := range cs {
		out[i] = c.ContentHash
	}
	return out
}

func runRecordTests(t *testing.T, factory StoreFactory) {
	t.Run("PutThenGet", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		want := location.ObjectRecord{ContentHash: hashA, FileSize: 42, Location: location.LocationDuplicated, TimeDuplicated: base}
		require.NoError(t, s.PutRecord(ctx, want))

		got, err := s.GetRecord(ctx, hashA)
		require.NoError(t, err)
		assert.Equal(t, want.ContentHash, got.ContentHash)
		assert.Equal(t, want.FileSize, got.FileSize)
		assert.Equal(t, want.Location, got.Location)
		assert.True(t, want.TimeDuplicated.Equal(got.TimeDuplicated))
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		require.NoError(t, s.PutRecord(ctx, location.ObjectRecord{ContentHash: hashA, FileSize: 1, Location: location.LocationLocal}))
		require.NoError(t, s.PutRecord(ctx, location.ObjectRecord{ContentHash: hashA, FileSize: 2, Location: location.LocationRemote}))

		got, err := s.GetRecord(ctx, hashA)
		require.NoError(t, err)
		assert.Equal(t, location.LocationRemote, got.Location)
		assert.EqualValues(t, 2, got.FileSize)
		assert.True(t, got.TimeDuplicated.IsZero())
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := factory(t)
		_, err := s.GetRecord(context.Background(), hashB)
		assert.ErrorIs(t, err, location.ErrRecordNotFound)
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()

		err := s.PutRecord(ctx, location.ObjectRecord{ContentHash: "not-hex", Location: location.LocationLocal})
		assert.ErrorIs(t, err, location.ErrInvalidContentHash)

		err = s.PutRecord(ctx, location.ObjectRecord{ContentHash: hashA, Location: location.Location(7)})
		assert.ErrorIs(t, err, location.ErrInvalidLocation)

		err = s.AddFile(ctx, location.File{ContentHash: "XYZ"})
		assert.ErrorIs(t, err, location.ErrInvalidContentHash)
	})
}

func runUpdateTests(t *testing.T, factory StoreFactory) {
	t.Run("AppliesWhenExpectedMatches", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		seed(t, s, location.ObjectRecord{ContentHash: hashA, FileSize: 10, Location: location.LocationDuplicated, TimeDuplicated: base})

		ok, err := s.UpdateLocation(ctx, hashA, location.LocationDuplicated, location.LocationRemote, base.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.GetRecord(ctx, hashA)
		require.NoError(t, err)
		assert.Equal(t, location.LocationRemote, got.Location)
		assert.True(t, base.Equal(got.TimeDuplicated), "timeduplicated is retained after leaving DUPLICATED")
		assert.EqualValues(t, 10, got.FileSize)
	})

	t.Run("RejectsWhenExpectedDiffers", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		seed(t, s, location.ObjectRecord{ContentHash: hashA, Location: location.LocationRemote})

		ok, err := s.UpdateLocation(ctx, hashA, location.LocationDuplicated, location.LocationError, base)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetRecord(ctx, hashA)
		require.NoError(t, err)
		assert.Equal(t, location.LocationRemote, got.Location)
	})

	t.Run("MissingRecord", func(t *testing.T) {
		s := factory(t)
		ok, err := s.UpdateLocation(context.Background(), hashC, location.LocationError, location.LocationLocal, base)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.GetRecord(context.Background(), hashC)
		assert.ErrorIs(t, err, location.ErrRecordNotFound, "update must not create records")
	})

	t.Run("StampsTimeDuplicatedOnEntry", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		seed(t, s, location.ObjectRecord{ContentHash: hashA, Location: location.LocationRemote, TimeDuplicated: base})

		now := base.Add(48 * time.Hour)
		ok, err := s.UpdateLocation(ctx, hashA, location.LocationRemote, location.LocationDuplicated, now)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.GetRecord(ctx, hashA)
		require.NoError(t, err)
		assert.Equal(t, location.LocationDuplicated, got.Location)
		assert.True(t, now.Equal(got.TimeDuplicated))
	})

	t.Run("KeepsTimeDuplicatedWhenStaying", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		seed(t, s, location.ObjectRecord{ContentHash: hashA, Location: location.LocationDuplicated, TimeDuplicated: base})

		ok, err := s.UpdateLocation(ctx, hashA, location.LocationDuplicated, location.LocationDuplicated, base.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.GetRecord(ctx, hashA)
		require.NoError(t, err)
		assert.True(t, base.Equal(got.TimeDuplicated))
	})

	t.Run("RejectsInvalidTarget", func(t *testing.T) {
		s := factory(t)
		seed(t, s, location.ObjectRecord{ContentHash: hashA, Location: location.LocationError})

		_, err := s.UpdateLocation(context.Background(), hashA, location.LocationError, location.Location(9), base)
		assert.ErrorIs(t, err, location.ErrInvalidLocation)
	})
}

func runCandidateTests(t *testing.T, factory StoreFactory) {
	t.Run("GroupsByHashWithMaxSize", func(t *testing.T) {
		s := factory(t)
		seed(t, s, location.ObjectRecord{ContentHash: hashB, FileSize: 70, Location: location.LocationRemote}, 30, 70, 50)
		seed(t, s, location.ObjectRecord{ContentHash: hashA, FileSize: 5, Location: location.LocationRemote}, 5)

		got, err := s.FindCandidates(context.Background(), location.CandidateQuery{Location: location.LocationRemote})
		require.NoError(t, err)
		assert.Equal(t, []location.Candidate{
			{ContentHash: hashA, FileSize: 5},
			{ContentHash: hashB, FileSize: 70},
		}, got)
	})

	t.Run("RequiresCatalogFile", func(t *testing.T) {
		s := factory(t)
		seed(t, s, location.ObjectRecord{ContentHash: hashA, Location: location.LocationError})
		seed(t, s, location.ObjectRecord{ContentHash: hashB, Location: location.LocationError}, 1)

		got, err := s.FindCandidates(context.Background(), location.CandidateQuery{Location: location.LocationError})
		require.NoError(t, err)
		assert.Equal(t, []location.ContentHash{hashB}, hashes(got))
	})

	t.Run("FiltersByLocation", func(t *testing.T) {
		s := factory(t)
		seed(t, s, location.ObjectRecord{ContentHash: hashA, Location: location.LocationLocal}, 1)
		seed(t, s, location.ObjectRecord{ContentHash: hashB, Location: location.LocationDuplicated, TimeDuplicated: base}, 1)
		seed(t, s, location.ObjectRecord{ContentHash: hashC, Location: location.LocationRemote}, 1)
		seed(t, s, location.ObjectRecord{ContentHash: hashD, Location: location.LocationError}, 1)

		for _, tc := range []struct {
			loc  location.Location
			want location.ContentHash
		}{
			{location.LocationLocal, hashA},
			{location.LocationDuplicated, hashB},
			{location.LocationRemote, hashC},
			{location.LocationError, hashD},
		} {
			got, err := s.FindCandidates(context.Background(), location.CandidateQuery{Location: tc.loc})
			require.NoError(t, err)
			assert.Equal(t, []location.ContentHash{tc.want}, hashes(got), tc.loc.String())
		}
	})

	t.Run("DuplicatedBeforeIsInclusive", func(t *testing.T) {
		s := factory(t)
		seed(t, s, location.ObjectRecord{ContentHash: hashA, Location: location.LocationDuplicated, TimeDuplicated: base.Add(-time.Second)}, 1)
		seed(t, s, location.ObjectRecord{ContentHash: hashB, Location: location.LocationDuplicated, TimeDuplicated: base}, 1)
		seed(t, s, location.ObjectRecord{ContentHash: hashC, Location: location.LocationDuplicated, TimeDuplicated: base.Add(time.Second)}, 1)
		seed(t, s, location.ObjectRecord{ContentHash: hashD, Location: location.LocationDuplicated}, 1)

		cutoff := base
		got, err := s.FindCandidates(context.Background(), location.CandidateQuery{
			Location:         location.LocationDuplicated,
			DuplicatedBefore: &cutoff,
		})
		require.NoError(t, err)
		assert.Equal(t, []location.ContentHash{hashA, hashB}, hashes(got))
	})

	t.Run("MaxFileSizeIsInclusiveOnGroupMax", func(t *testing.T) {
		s := factory(t)
		seed(t, s, location.ObjectRecord{ContentHash: hashA, Location: location.LocationRemote}, 100)
		seed(t, s, location.ObjectRecord{ContentHash: hashB, Location: location.LocationRemote}, 10, 101)
		seed(t, s, location.ObjectRecord{ContentHash: hashC, Location: location.LocationRemote}, 99)

		limit := int64(100)
		got, err := s.FindCandidates(context.Background(), location.CandidateQuery{
			Location:    location.LocationRemote,
			MaxFileSize: &limit,
		})
		require.NoError(t, err)
		assert.Equal(t, []location.ContentHash{hashA, hashC}, hashes(got))
	})

	t.Run("Limit", func(t *testing.T) {
		s := factory(t)
		for _, h := range []location.ContentHash{hashD, hashB, hashA, hashC} {
			seed(t, s, location.ObjectRecord{ContentHash: h, Location: location.LocationError}, 1)
		}

		got, err := s.FindCandidates(context.Background(), location.CandidateQuery{Location: location.LocationError, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []location.ContentHash{hashA, hashB}, hashes(got))
	})

	t.Run("LimitAppliesInHashOrderForMixedLengths", func(t *testing.T) {
		s := factory(t)
		const short, long location.ContentHash = "abcd", "abcd01"
		seed(t, s, location.ObjectRecord{ContentHash: long, Location: location.LocationError}, 1)
		seed(t, s, location.ObjectRecord{ContentHash: short, Location: location.LocationError}, 1)

		got, err := s.FindCandidates(context.Background(), location.CandidateQuery{Location: location.LocationError, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []location.ContentHash{short}, hashes(got))
	})

	t.Run("EmptyIsNotAnError", func(t *testing.T) {
		s := factory(t)
		got, err := s.FindCandidates(context.Background(), location.CandidateQuery{Location: location.LocationRemote})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("RejectsInvalidQuery", func(t *testing.T) {
		s := factory(t)
		_, err := s.FindCandidates(context.Background(), location.CandidateQuery{Location: location.Location(5)})
		assert.ErrorIs(t, err, location.ErrInvalidLocation)
	})
}

func runCountTests(t *testing.T, factory StoreFactory) {
	s := factory(t)
	seed(t, s, location.ObjectRecord{ContentHash: hashA, FileSize: 10, Location: location.LocationRemote})
	seed(t, s, location.ObjectRecord{ContentHash: hashB, FileSize: 20, Location: location.LocationRemote})
	seed(t, s, location.ObjectRecord{ContentHash: hashC, FileSize: 5, Location: location.LocationError})

	got, err := s.CountByLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, location.LocationSummary{Objects: 2, Bytes: 30}, got[location.LocationRemote])
	assert.Equal(t, location.LocationSummary{Objects: 1, Bytes: 5}, got[location.LocationError])
	assert.Zero(t, got[location.LocationLocal])
}

func runLifecycleTests(t *testing.T, factory StoreFactory) {
	t.Run("Healthcheck", func(t *testing.T) {
		s := factory(t)
		assert.NoError(t, s.Healthcheck(context.Background()))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		s := factory(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.FindCandidates(ctx, location.CandidateQuery{Location: location.LocationError})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ClosedStore", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close(), "Close is idempotent")

		_, err := s.GetRecord(context.Background(), hashA)
		assert.ErrorIs(t, err, location.ErrStoreClosed)
		_, err = s.UpdateLocation(context.Background(), hashA, location.LocationError, location.LocationLocal, base)
		assert.ErrorIs(t, err, location.ErrStoreClosed)
		assert.ErrorIs(t, s.Healthcheck(context.Background()), location.ErrStoreClosed)
	})
}
