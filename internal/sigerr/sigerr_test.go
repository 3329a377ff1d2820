package sigerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	t.Run("wraps plain error with category", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(CategoryRemote, cause)

		require.Equal(t, CategoryRemote, CategoryOf(err))
		require.ErrorIs(t, err, cause)
	})

	t.Run("preserves existing category", func(t *testing.T) {
		inner := New(CategoryExhausted, "no free key")
		err := Wrap(CategoryRemote, fmt.Errorf("failed to lease: %w", inner))

		require.Equal(t, CategoryExhausted, CategoryOf(err))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, Wrap(CategoryRemote, nil))
	})
}

func TestCategoryOf(t *testing.T) {
	t.Run("finds category through wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CategoryCapacity, "over limit"))
		require.Equal(t, CategoryCapacity, CategoryOf(err))
	})

	t.Run("uncategorized defaults to remote", func(t *testing.T) {
		require.Equal(t, CategoryRemote, CategoryOf(errors.New("mystery")))
	})
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(New(CategoryExhausted, "no free key")))
	require.True(t, IsRetryable(New(CategoryRemote, "timeout")))
	require.False(t, IsRetryable(New(CategoryUnauthorized, "refused")))
	require.False(t, IsRetryable(New(CategoryConfiguration, "no worker")))
	require.False(t, IsRetryable(New(CategoryCapacity, "over limit")))
	require.False(t, IsRetryable(New(CategoryInvariant, "count mismatch")))
	require.False(t, IsRetryable(errors.New("uncategorized")))
}
