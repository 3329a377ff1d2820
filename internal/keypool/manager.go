// Package keypool owns the pools of pre-provisioned signing keys: atomic
// leasing, release, destruction of one-time keys, background replenishment
// and reclamation of stuck leases.
//
// Key lifecycle: FREE -> LEASED -> FREE or DESTROYED. The lease is a single
// conditional update at the storage layer; the manager never emulates it
// with read-then-write.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/backend"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
	"github.com/trustedge/signhub/internal/store"
	"github.com/trustedge/signhub/internal/telemetry"
)

// Manager performs lease, release and destroy operations over the configured
// key holders' pools.
type Manager struct {
	store   store.KeyPoolStore
	keygen  backend.KeyGenerator
	holders map[int64]*models.KeyHolder
}

// NewManager creates a key pool manager over the configured key holders.
func NewManager(st store.KeyPoolStore, keygen backend.KeyGenerator, holders []*models.KeyHolder) (*Manager, error) {
	byID := make(map[int64]*models.KeyHolder, len(holders))
	for _, h := range holders {
		if err := h.Validate(); err != nil {
			return nil, err
		}
		if _, ok := byID[h.ID]; ok {
			return nil, fmt.Errorf("duplicate key holder id %d", h.ID)
		}
		byID[h.ID] = h
	}

	return &Manager{
		store:   st,
		keygen:  keygen,
		holders: byID,
	}, nil
}

// Holder returns the configured key holder by ID.
func (m *Manager) Holder(keyHolderID int64) (*models.KeyHolder, bool) {
	h, ok := m.holders[keyHolderID]
	return h, ok
}

// Profile returns the pool profile for the pool coordinates, if configured.
func (m *Manager) Profile(keyHolderID int64, algorithm string, usage models.KeyUsage) (*models.KeyPoolProfile, bool) {
	h, ok := m.holders[keyHolderID]
	if !ok {
		return nil, false
	}
	for i := range h.Profiles {
		p := &h.Profiles[i]
		if p.KeyAlgorithm == algorithm && p.Usage == usage {
			return p, true
		}
	}
	return nil, false
}

// Lease atomically claims one free key from the pool. Pool exhaustion is a
// retryable error, never a silent on-demand generation.
func (m *Manager) Lease(ctx context.Context, keyHolderID int64, algorithm string, usage models.KeyUsage) (*models.PoolKey, error) {
	key, err := m.store.ClaimFreeKey(ctx, keyHolderID, algorithm, usage)
	if err != nil {
		if errors.Is(err, store.ErrNoFreeKey) {
			telemetry.GetMetrics().PoolExhaustedTotal.Add(ctx, 1)
			return nil, sigerr.Newf(sigerr.CategoryExhausted,
				"no free %s %s key in pool of key holder %d", usage, algorithm, keyHolderID)
		}
		return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	telemetry.GetMetrics().KeysLeasedTotal.Add(ctx, 1)

	log.Info().
		Str("key_id", key.KeyID.String()).
		Str("alias", key.Alias).
		Int64("key_holder_id", keyHolderID).
		Str("usage", string(usage)).
		Msg("Leased pool key")

	return key, nil
}

// Release returns a leased key to its pool. Releasing a free or unknown key
// is a success no-op.
func (m *Manager) Release(ctx context.Context, keyID uuid.UUID) error {
	if err := m.store.ReleaseKey(ctx, keyID); err != nil {
		return sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	telemetry.GetMetrics().KeysReleasedTotal.Add(ctx, 1)
	return nil
}

// Destroy permanently removes a one-time key after its single use: the pool
// record is deleted so the key can never be leased again, then the key
// material is removed from the key holder. Material removal failures are
// logged; the record deletion is what upholds single use.
func (m *Manager) Destroy(ctx context.Context, key *models.PoolKey) error {
	if err := m.store.DeleteKey(ctx, key.KeyID); err != nil {
		return sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	telemetry.GetMetrics().KeysDestroyedTotal.Add(ctx, 1)
	m.removeMaterial(ctx, key)

	log.Info().
		Str("key_id", key.KeyID.String()).
		Str("alias", key.Alias).
		Msg("Destroyed one-time key")

	return nil
}

// ReclaimStale frees a stale leased key, but only while the lease still
// predates the cutoff. A false return means the key was released or re-leased
// after being listed stale and must be left alone.
func (m *Manager) ReclaimStale(ctx context.Context, keyID uuid.UUID, cutoff time.Time) (bool, error) {
	reclaimed, err := m.store.ReclaimStaleKey(ctx, keyID, cutoff)
	if err != nil {
		return false, sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	if reclaimed {
		telemetry.GetMetrics().KeysReleasedTotal.Add(ctx, 1)
	}
	return reclaimed, nil
}

// DestroyStale destroys a stale one-time key under the same conditional
// predicate as ReclaimStale. Key material is removed only when the record
// deletion actually happened.
func (m *Manager) DestroyStale(ctx context.Context, key *models.PoolKey, cutoff time.Time) (bool, error) {
	destroyed, err := m.store.DestroyStaleKey(ctx, key.KeyID, cutoff)
	if err != nil {
		return false, sigerr.Wrap(sigerr.CategoryRemote, err)
	}
	if !destroyed {
		return false, nil
	}

	telemetry.GetMetrics().KeysDestroyedTotal.Add(ctx, 1)
	m.removeMaterial(ctx, key)

	log.Info().
		Str("key_id", key.KeyID.String()).
		Str("alias", key.Alias).
		Msg("Destroyed stale one-time key")

	return true, nil
}

func (m *Manager) removeMaterial(ctx context.Context, key *models.PoolKey) {
	holderName := fmt.Sprintf("%d", key.KeyHolderID)
	if h, ok := m.holders[key.KeyHolderID]; ok {
		holderName = h.Name
	}

	if err := m.keygen.RemoveKey(ctx, holderName, key.Alias); err != nil {
		log.Error().Err(err).
			Str("key_id", key.KeyID.String()).
			Str("alias", key.Alias).
			Msg("Failed to remove destroyed key material from key holder")
	}
}
