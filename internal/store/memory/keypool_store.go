package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/store"
)

// KeyPoolStore implements store.KeyPoolStore using in-memory storage. The
// claim is performed under a single mutex, so it carries the same exclusivity
// guarantee as the database-backed store. Used by unit tests and local
// development.
type KeyPoolStore struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*models.PoolKey
}

// NewKeyPoolStore creates a new in-memory key pool store.
func NewKeyPoolStore() *KeyPoolStore {
	return &KeyPoolStore{
		keys: make(map[uuid.UUID]*models.PoolKey),
	}
}

// ClaimFreeKey atomically claims the oldest free key matching the pool
// coordinates.
func (s *KeyPoolStore) ClaimFreeKey(ctx context.Context, keyHolderID int64, algorithm string, usage models.KeyUsage) (*models.PoolKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*models.PoolKey
	for _, key := range s.keys {
		if key.KeyHolderID == keyHolderID && key.Algorithm == algorithm && key.Usage == usage && !key.InUse {
			candidates = append(candidates, key)
		}
	}

	if len(candidates) == 0 {
		return nil, store.ErrNoFreeKey
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	key := candidates[0]
	now := time.Now()
	key.InUse = true
	key.AcquiredAt = &now

	claimed := *key
	return &claimed, nil
}

// ReleaseKey flips a leased key back to free. No-op for free or unknown keys.
func (s *KeyPoolStore) ReleaseKey(ctx context.Context, keyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keyID]
	if !ok || !key.InUse {
		return nil
	}

	key.InUse = false
	key.AcquiredAt = nil
	return nil
}

// DeleteKey permanently removes a key record.
func (s *KeyPoolStore) DeleteKey(ctx context.Context, keyID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, keyID)
	return nil
}

// InsertKey adds a newly generated key in the free state.
func (s *KeyPoolStore) InsertKey(ctx context.Context, key *models.PoolKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *key
	stored.InUse = false
	stored.AcquiredAt = nil
	s.keys[key.KeyID] = &stored
	return nil
}

// CountFreeKeys returns the free-key count for a pool profile.
func (s *KeyPoolStore) CountFreeKeys(ctx context.Context, keyHolderID int64, algorithm string, usage models.KeyUsage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, key := range s.keys {
		if key.KeyHolderID == keyHolderID && key.Algorithm == algorithm && key.Usage == usage && !key.InUse {
			count++
		}
	}
	return count, nil
}

// StaleLeasedKeys returns leased keys acquired before the cutoff, oldest
// first.
func (s *KeyPoolStore) StaleLeasedKeys(ctx context.Context, cutoff time.Time) ([]*models.PoolKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*models.PoolKey
	for _, key := range s.keys {
		if key.InUse && key.AcquiredAt != nil && key.AcquiredAt.Before(cutoff) {
			copied := *key
			stale = append(stale, &copied)
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].AcquiredAt.Before(*stale[j].AcquiredAt)
	})

	return stale, nil
}

// ReclaimStaleKey frees a leased key only while its lease still predates the
// cutoff. The check and the flip happen under one mutex hold, matching the
// conditional-update semantics of the database-backed store.
func (s *KeyPoolStore) ReclaimStaleKey(ctx context.Context, keyID uuid.UUID, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keyID]
	if !ok || !key.InUse || key.AcquiredAt == nil || !key.AcquiredAt.Before(cutoff) {
		return false, nil
	}

	key.InUse = false
	key.AcquiredAt = nil
	return true, nil
}

// DestroyStaleKey removes a leased key record under the same conditional
// predicate as ReclaimStaleKey.
func (s *KeyPoolStore) DestroyStaleKey(ctx context.Context, keyID uuid.UUID, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keyID]
	if !ok || !key.InUse || key.AcquiredAt == nil || !key.AcquiredAt.Before(cutoff) {
		return false, nil
	}

	delete(s.keys, keyID)
	return true, nil
}

// Key returns a copy of a stored key, for test assertions.
func (s *KeyPoolStore) Key(keyID uuid.UUID) (*models.PoolKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keyID]
	if !ok {
		return nil, false
	}
	copied := *key
	return &copied, true
}
