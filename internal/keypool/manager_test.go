package keypool

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/trustedge/signhub/internal/backend"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
	"github.com/trustedge/signhub/internal/store/memory"
)

func testHolder() *models.KeyHolder {
	return &models.KeyHolder{
		ID:   1,
		Name: "hsm-1",
		Profiles: []models.KeyPoolProfile{
			{
				KeyAlgorithm:    "RSA",
				KeySpec:         "2048",
				AliasPrefix:     "ot-rsa",
				DesiredSize:     5,
				MaxPerReplenish: 3,
				Usage:           models.KeyUsageOneTime,
				SignatureLimit:  1,
			},
			{
				KeyAlgorithm: "RSA",
				KeySpec:      "2048",
				AliasPrefix:  "ses-rsa",
				DesiredSize:  2,
				Usage:        models.KeyUsageSession,
			},
		},
	}
}

func seedKey(t *testing.T, st *memory.KeyPoolStore, holderID int64, algorithm string, usage models.KeyUsage) *models.PoolKey {
	t.Helper()
	id := uuid.Must(uuid.NewV7())
	key := &models.PoolKey{
		KeyID:       id,
		KeyHolderID: holderID,
		Alias:       "seed-" + id.String(),
		Algorithm:   algorithm,
		Usage:       usage,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, st.InsertKey(context.Background(), key))
	return key
}

func TestManagerLease(t *testing.T) {
	ctx := context.Background()

	t.Run("leases a free key", func(t *testing.T) {
		st := memory.NewKeyPoolStore()
		manager, err := NewManager(st, &backend.FakeKeyGenerator{}, []*models.KeyHolder{testHolder()})
		require.NoError(t, err)

		seeded := seedKey(t, st, 1, "RSA", models.KeyUsageOneTime)

		key, err := manager.Lease(ctx, 1, "RSA", models.KeyUsageOneTime)
		require.NoError(t, err)
		require.Equal(t, seeded.KeyID, key.KeyID)
		require.True(t, key.InUse)
	})

	t.Run("exhausted pool is a retryable error, not on-demand generation", func(t *testing.T) {
		st := memory.NewKeyPoolStore()
		keygen := &backend.FakeKeyGenerator{}
		manager, err := NewManager(st, keygen, []*models.KeyHolder{testHolder()})
		require.NoError(t, err)

		_, err = manager.Lease(ctx, 1, "RSA", models.KeyUsageOneTime)
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryExhausted, sigerr.CategoryOf(err))
		require.True(t, sigerr.IsRetryable(err))
		require.Empty(t, keygen.Generated)
	})

	t.Run("rejects duplicate holder ids", func(t *testing.T) {
		_, err := NewManager(memory.NewKeyPoolStore(), &backend.FakeKeyGenerator{},
			[]*models.KeyHolder{testHolder(), testHolder()})
		require.Error(t, err)
	})
}

func TestManagerRelease(t *testing.T) {
	ctx := context.Background()

	st := memory.NewKeyPoolStore()
	manager, err := NewManager(st, &backend.FakeKeyGenerator{}, []*models.KeyHolder{testHolder()})
	require.NoError(t, err)

	seedKey(t, st, 1, "RSA", models.KeyUsageSession)

	key, err := manager.Lease(ctx, 1, "RSA", models.KeyUsageSession)
	require.NoError(t, err)

	require.NoError(t, manager.Release(ctx, key.KeyID))

	// The released key can be leased again.
	again, err := manager.Lease(ctx, 1, "RSA", models.KeyUsageSession)
	require.NoError(t, err)
	require.Equal(t, key.KeyID, again.KeyID)

	// Releasing twice is a no-op.
	require.NoError(t, manager.Release(ctx, key.KeyID))
	require.NoError(t, manager.Release(ctx, key.KeyID))
}

func TestManagerDestroy(t *testing.T) {
	ctx := context.Background()

	st := memory.NewKeyPoolStore()
	keygen := &backend.FakeKeyGenerator{}
	manager, err := NewManager(st, keygen, []*models.KeyHolder{testHolder()})
	require.NoError(t, err)

	seedKey(t, st, 1, "RSA", models.KeyUsageOneTime)

	key, err := manager.Lease(ctx, 1, "RSA", models.KeyUsageOneTime)
	require.NoError(t, err)

	require.NoError(t, manager.Destroy(ctx, key))

	// The destroyed key can never be leased again and its material is gone.
	_, err = manager.Lease(ctx, 1, "RSA", models.KeyUsageOneTime)
	require.Equal(t, sigerr.CategoryExhausted, sigerr.CategoryOf(err))
	require.Equal(t, []string{key.Alias}, keygen.Removed)
	_, ok := st.Key(key.KeyID)
	require.False(t, ok)
}

func TestManagerProfile(t *testing.T) {
	manager, err := NewManager(memory.NewKeyPoolStore(), &backend.FakeKeyGenerator{}, []*models.KeyHolder{testHolder()})
	require.NoError(t, err)

	profile, ok := manager.Profile(1, "RSA", models.KeyUsageOneTime)
	require.True(t, ok)
	require.Equal(t, "ot-rsa", profile.AliasPrefix)

	_, ok = manager.Profile(1, "ECDSA", models.KeyUsageOneTime)
	require.False(t, ok)

	_, ok = manager.Profile(2, "RSA", models.KeyUsageOneTime)
	require.False(t, ok)
}
