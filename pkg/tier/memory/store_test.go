package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/tierkeeper/pkg/tier"
	"github.com/marmos91/tierkeeper/pkg/tier/memory"
	"github.com/marmos91/tierkeeper/pkg/tier/tiertest"
)

func TestConformance(t *testing.T) {
	tiertest.RunConformanceSuite(t, func(t *testing.T) tier.Tier {
		return memory.New("memory")
	})
}

func TestFail(t *testing.T) {
	s := memory.New("remote")
	s.PutBytes("abcd", []byte("x"))
	boom := errors.New("unreachable")

	s.Fail("stat", boom)
	_, err := s.Stat(context.Background(), "abcd")
	assert.ErrorIs(t, err, boom)

	s.Fail("stat", nil)
	_, err = s.Stat(context.Background(), "abcd")
	assert.NoError(t, err)
	assert.True(t, s.Has("abcd"))
	assert.Equal(t, 1, s.Len())
}
