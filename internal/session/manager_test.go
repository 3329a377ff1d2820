package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/trustedge/signhub/internal/backend"
	"github.com/trustedge/signhub/internal/ca"
	"github.com/trustedge/signhub/internal/keypool"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
	"github.com/trustedge/signhub/internal/store/memory"
)

type fixture struct {
	sessions *memory.SessionStore
	creds    *memory.CredentialStore
	keys     *memory.KeyPoolStore
	manager  *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	holder := &models.KeyHolder{
		ID:   1,
		Name: "hsm-1",
		Profiles: []models.KeyPoolProfile{
			{KeyAlgorithm: "RSA", KeySpec: "2048", AliasPrefix: "ses-rsa", DesiredSize: 2, Usage: models.KeyUsageSession},
		},
	}

	keys := memory.NewKeyPoolStore()
	pool, err := keypool.NewManager(keys, &backend.FakeKeyGenerator{}, []*models.KeyHolder{holder})
	require.NoError(t, err)

	sessions := memory.NewSessionStore()
	creds := memory.NewCredentialStore()

	return &fixture{
		sessions: sessions,
		creds:    creds,
		keys:     keys,
		manager:  NewManager(sessions, creds, pool, opts...),
	}
}

func (f *fixture) seedSessionKey(t *testing.T) *models.PoolKey {
	t.Helper()
	id := uuid.Must(uuid.NewV7())
	key := &models.PoolKey{
		KeyID:       id,
		KeyHolderID: 1,
		Alias:       "ses-rsa-" + id.String(),
		Algorithm:   "RSA",
		Usage:       models.KeyUsageSession,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.keys.InsertKey(context.Background(), key))
	return key
}

func TestManagerSaveNew(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a new session and derives status", func(t *testing.T) {
		f := newFixture(t)
		session := models.NewSigningSession("cred-1", time.Now().Add(time.Hour))

		status, err := f.manager.SaveNew(ctx, session)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusActive, status)
	})

	t.Run("a session already expired at save is reported expired", func(t *testing.T) {
		f := newFixture(t)
		session := models.NewSigningSession("cred-1", time.Now().Add(-time.Minute))

		status, err := f.manager.SaveNew(ctx, session)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusExpired, status)
	})

	t.Run("rejects non-NEW sessions", func(t *testing.T) {
		f := newFixture(t)
		session := models.NewSigningSession("cred-1", time.Now().Add(time.Hour))
		session.Status = models.SessionStatusActive

		_, err := f.manager.SaveNew(ctx, session)
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})
}

func TestManagerGet(t *testing.T) {
	ctx := context.Background()

	t.Run("absent session is nil, not an error", func(t *testing.T) {
		f := newFixture(t)

		session, err := f.manager.Get(ctx, uuid.Must(uuid.NewV7()))
		require.NoError(t, err)
		require.Nil(t, session)
	})

	t.Run("expired session comes back classified", func(t *testing.T) {
		f := newFixture(t)
		session := models.NewSigningSession("cred-1", time.Now().Add(-time.Minute))
		_, err := f.manager.SaveNew(ctx, session)
		require.NoError(t, err)

		loaded, err := f.manager.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusExpired, loaded.Status)
	})
}

func TestManagerCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("leases a session key and binds it to a credential", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedSessionKey(t)

		session, err := f.manager.Create(ctx, "user-1", 1, "RSA", 3, time.Hour)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusActive, session.Status)

		cred, err := f.creds.GetSessionCredential(ctx, session.CredentialID)
		require.NoError(t, err)
		require.Equal(t, seeded.KeyID, cred.KeyID)
		require.Equal(t, 3, cred.Multisign)

		stored, ok := f.keys.Key(seeded.KeyID)
		require.True(t, ok)
		require.True(t, stored.InUse)
	})

	t.Run("empty session pool fails with exhausted", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.manager.Create(ctx, "user-1", 1, "RSA", 1, time.Hour)
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryExhausted, sigerr.CategoryOf(err))
	})
}

func TestManagerCleanupExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("removes expired sessions and frees their keys", func(t *testing.T) {
		f := newFixture(t)
		seeded := f.seedSessionKey(t)

		session, err := f.manager.Create(ctx, "user-1", 1, "RSA", 1, -2*time.Hour)
		require.NoError(t, err)

		cleaned, err := f.manager.CleanupExpired(ctx, time.Hour)
		require.NoError(t, err)
		require.Equal(t, 1, cleaned)

		gone, err := f.manager.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Nil(t, gone)

		_, err = f.creds.GetSessionCredential(ctx, session.CredentialID)
		require.Error(t, err)

		stored, ok := f.keys.Key(seeded.KeyID)
		require.True(t, ok)
		require.False(t, stored.InUse)
	})

	t.Run("grace keeps recently expired sessions", func(t *testing.T) {
		f := newFixture(t)
		f.seedSessionKey(t)

		_, err := f.manager.Create(ctx, "user-1", 1, "RSA", 1, -time.Minute)
		require.NoError(t, err)

		cleaned, err := f.manager.CleanupExpired(ctx, time.Hour)
		require.NoError(t, err)
		require.Zero(t, cleaned)
	})

	t.Run("active sessions are untouched", func(t *testing.T) {
		f := newFixture(t)
		f.seedSessionKey(t)

		session, err := f.manager.Create(ctx, "user-1", 1, "RSA", 1, time.Hour)
		require.NoError(t, err)

		cleaned, err := f.manager.CleanupExpired(ctx, 0)
		require.NoError(t, err)
		require.Zero(t, cleaned)

		still, err := f.manager.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.NotNil(t, still)
	})
}

func TestManagerCertificates(t *testing.T) {
	ctx := context.Background()

	t.Run("create issues a certificate for the session credential", func(t *testing.T) {
		fakeCA := &ca.FakeClient{}
		f := newFixture(t, WithCA(fakeCA))
		f.seedSessionKey(t)

		_, err := f.manager.Create(ctx, "user-1", 1, "RSA", 1, time.Hour)
		require.NoError(t, err)
		require.Equal(t, []string{"user-1"}, fakeCA.Issued)
	})

	t.Run("issuance failure rolls back credential and lease", func(t *testing.T) {
		fakeCA := &ca.FakeClient{Err: errors.New("ca unreachable")}
		f := newFixture(t, WithCA(fakeCA))
		seeded := f.seedSessionKey(t)

		_, err := f.manager.Create(ctx, "user-1", 1, "RSA", 1, time.Hour)
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryRemote, sigerr.CategoryOf(err))

		var remoteErr *ca.RemoteError
		require.ErrorAs(t, err, &remoteErr)
		require.Equal(t, "issue", remoteErr.Operation)

		stored, ok := f.keys.Key(seeded.KeyID)
		require.True(t, ok)
		require.False(t, stored.InUse, "lease must be released when issuance fails")
	})

	t.Run("cleanup revokes the session certificate", func(t *testing.T) {
		fakeCA := &ca.FakeClient{}
		f := newFixture(t, WithCA(fakeCA))
		f.seedSessionKey(t)

		_, err := f.manager.Create(ctx, "user-1", 1, "RSA", 1, -2*time.Hour)
		require.NoError(t, err)

		cleaned, err := f.manager.CleanupExpired(ctx, time.Hour)
		require.NoError(t, err)
		require.Equal(t, 1, cleaned)
		require.Equal(t, []string{"user-1"}, fakeCA.Revoked)
	})
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session := models.NewSigningSession("cred-1", time.Now().Add(time.Hour))
	_, err := f.manager.SaveNew(ctx, session)
	require.NoError(t, err)

	require.NoError(t, f.manager.Delete(ctx, session))
	// Deleting again is a success no-op.
	require.NoError(t, f.manager.Delete(ctx, session))
}
