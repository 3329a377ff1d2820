package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSigningSessionDeriveStatus(t *testing.T) {
	now := time.Now()

	t.Run("future expiry is active", func(t *testing.T) {
		s := NewSigningSession("cred-1", now.Add(time.Hour))
		require.Equal(t, SessionStatusNew, s.Status)
		require.Equal(t, SessionStatusActive, s.DeriveStatus(now))
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		s := NewSigningSession("cred-1", now.Add(-time.Minute))
		require.Equal(t, SessionStatusExpired, s.DeriveStatus(now))
	})

	t.Run("expiry at exactly now is expired", func(t *testing.T) {
		s := NewSigningSession("cred-1", now)
		require.Equal(t, SessionStatusExpired, s.DeriveStatus(now))
	})
}
