// Package tiertest is a conformance suite for tier.Tier implementations.
package tiertest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/tier"
)

// TierFactory creates a fresh, empty Tier for each test.
type TierFactory func(t *testing.T) tier.Tier

const hashB location.ContentHash = "bbbb000011112222333344445555666677778888"

// RunConformanceSuite runs the suite against factory.
func RunConformanceSuite(t *testing.T, factory TierFactory) {
	t.Helper()

	t.Run("PutStatOpen", func(t *testing.T) {
		tr := factory(t)
		ctx := context.Background()
		payload := []byte("hello tier")

		n, err := tr.Put(ctx, hashB, bytes.NewReader(payload))
		require.NoError(t, err)
		assert.EqualValues(t, len(payload), n)

		info, err := tr.Stat(ctx, hashB)
		require.NoError(t, err)
		assert.EqualValues(t, len(payload), info.Size)

		rc, err := tr.Open(ctx, hashB)
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("MissingObject", func(t *testing.T) {
		tr := factory(t)
		ctx := context.Background()

		_, err := tr.Stat(ctx, hashB)
		assert.ErrorIs(t, err, tier.ErrObjectNotFound)
		_, err = tr.Open(ctx, hashB)
		assert.ErrorIs(t, err, tier.ErrObjectNotFound)
	})

	t.Run("FailedReadLeavesNoObject", func(t *testing.T) {
		tr := factory(t)
		ctx := context.Background()
		boom := errors.New("boom")

		_, err := tr.Put(ctx, hashB, io.MultiReader(bytes.NewReader([]byte("partial")), errReader{boom}))
		assert.ErrorIs(t, err, boom)

		_, err = tr.Stat(ctx, hashB)
		assert.ErrorIs(t, err, tier.ErrObjectNotFound)
	})

	t.Run("Overwrite", func(t *testing.T) {
		tr := factory(t)
		ctx := context.Background()

		_, err := tr.Put(ctx, hashB, bytes.NewReader([]byte("one")))
		require.NoError(t, err)
		_, err = tr.Put(ctx, hashB, bytes.NewReader([]byte("three")))
		require.NoError(t, err)

		info, err := tr.Stat(ctx, hashB)
		require.NoError(t, err)
		assert.EqualValues(t, 5, info.Size)
	})

	t.Run("Delete", func(t *testing.T) {
		tr := factory(t)
		ctx := context.Background()

		_, err := tr.Put(ctx, hashB, bytes.NewReader([]byte("x")))
		require.NoError(t, err)
		require.NoError(t, tr.Delete(ctx, hashB))

		_, err = tr.Stat(ctx, hashB)
		assert.ErrorIs(t, err, tier.ErrObjectNotFound)
	})

	t.Run("HealthAndClose", func(t *testing.T) {
		tr := factory(t)
		ctx := context.Background()

		assert.NoError(t, tr.HealthCheck(ctx))
		require.NoError(t, tr.Close())
		_, err := tr.Stat(ctx, hashB)
		assert.ErrorIs(t, err, tier.ErrStoreClosed)
	})
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
