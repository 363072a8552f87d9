package badger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/location/badger"
	"github.com/marmos91/tierkeeper/pkg/location/locationtest"
)

func TestConformance(t *testing.T) {
	locationtest.RunConformanceSuite(t, func(t *testing.T) location.Store {
		s, err := badger.New(context.Background(), badger.Config{Path: filepath.Join(t.TempDir(), "locations")})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestConformanceInMemory(t *testing.T) {
	locationtest.RunConformanceSuite(t, func(t *testing.T) location.Store {
		s, err := badger.New(context.Background(), badger.Config{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "locations")
	const hash location.ContentHash = "00112233445566778899aabbccddeeff00112233"

	s, err := badger.New(ctx, badger.Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.PutRecord(ctx, location.ObjectRecord{ContentHash: hash, FileSize: 9, Location: location.LocationRemote}))
	require.NoError(t, s.AddFile(ctx, location.File{ContentHash: hash, FileSize: 9, FileName: "a.bin"}))
	require.NoError(t, s.Close())

	s, err = badger.New(ctx, badger.Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindCandidates(ctx, location.CandidateQuery{Location: location.LocationRemote})
	require.NoError(t, err)
	assert.Equal(t, []location.Candidate{{ContentHash: hash, FileSize: 9}}, got)
}

func TestRequiresPath(t *testing.T) {
	_, err := badger.New(context.Background(), badger.Config{})
	assert.Error(t, err)
}
