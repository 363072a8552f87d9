package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/location/badger"
	"github.com/marmos91/tierkeeper/pkg/manipulator"
	"github.com/marmos91/tierkeeper/pkg/tier/local"
)

func TestCreateLocationStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := CreateLocationStore(ctx, LocationStoreConfig{Type: "memory"})
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		assert.NoError(t, store.Healthcheck(ctx))
	})

	t.Run("badger", func(t *testing.T) {
		store, err := CreateLocationStore(ctx, LocationStoreConfig{
			Type:   "badger",
			Badger: badger.Config{Path: filepath.Join(t.TempDir(), "locations")},
		})
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.PutRecord(ctx, location.ObjectRecord{
			ContentHash: "aabb",
			FileSize:    1,
			Location:    location.LocationLocal,
		}))
		rec, err := store.GetRecord(ctx, "aabb")
		require.NoError(t, err)
		assert.Equal(t, location.LocationLocal, rec.Location)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := CreateLocationStore(ctx, LocationStoreConfig{Type: "redis"})
		assert.ErrorContains(t, err, "unknown location store type")
	})
}

func TestCreateAdapter(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	adapter, err := CreateAdapter(ctx, StorageConfig{
		Local: local.Config{Path: filepath.Join(dir, "local")},
		Remote: RemoteConfig{
			Type:  "local",
			Local: local.Config{Path: filepath.Join(dir, "remote")},
		},
		VerifyDigest: "sha256",
	}, nil)
	require.NoError(t, err)
	defer func() { _ = adapter.Close() }()

	assert.NoError(t, adapter.HealthCheck(ctx))
	assert.Equal(t, "local", adapter.Local().Name())

	loc, err := adapter.ProbeLocation(ctx, "0123abcd")
	require.NoError(t, err)
	assert.Equal(t, location.LocationError, loc, "an object in neither tier probes as ERROR")
}

func TestCreateAdapter_RejectsUnknownDigest(t *testing.T) {
	_, err := CreateAdapter(context.Background(), StorageConfig{
		Local:        local.Config{Path: t.TempDir()},
		Remote:       RemoteConfig{Type: "local", Local: local.Config{Path: t.TempDir()}},
		VerifyDigest: "md5",
	}, nil)
	assert.Error(t, err)
}

func TestCreateHistory(t *testing.T) {
	store, err := CreateHistory(history.Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = CreateHistory(history.Config{
		Enabled: true,
		Type:    history.DatabaseTypeSQLite,
		SQLite:  history.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	require.NotNil(t, store)
	defer func() { _ = store.Close() }()
	assert.NoError(t, store.Healthcheck(context.Background()))
}

func TestCreateManipulator(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := CreateLocationStore(ctx, LocationStoreConfig{Type: "memory"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	adapter, err := CreateAdapter(ctx, StorageConfig{
		Local:  local.Config{Path: filepath.Join(dir, "local")},
		Remote: RemoteConfig{Type: "local", Local: local.Config{Path: filepath.Join(dir, "remote")}},
	}, nil)
	require.NoError(t, err)
	defer func() { _ = adapter.Close() }()

	deps := manipulator.Deps{Store: store, Adapter: adapter}
	cfg := GetDefaultConfig().Manipulators

	for _, action := range manipulator.Actions() {
		m, err := CreateManipulator(action, cfg, deps)
		require.NoError(t, err, action)
		assert.Equal(t, action, m.Action())
	}

	_, err = CreateManipulator("compact", cfg, deps)
	assert.Error(t, err)

	_, err = CreateManipulator(manipulator.ActionDelete, cfg, manipulator.Deps{})
	assert.Error(t, err, "missing dependencies are rejected")
}
