package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trustedge/signhub/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrNoFreeKey          = errors.New("no free key available")
	ErrKeyNotFound        = errors.New("pool key not found")
	ErrSessionNotFound    = errors.New("signing session not found")
	ErrCredentialNotFound = errors.New("credential not found")
)

// KeyPoolStore defines storage operations over the pool of pre-provisioned
// signing keys. ClaimFreeKey is the single mutation path for leasing and must
// be implemented as one atomic conditional update so that two concurrent
// callers can never claim the same free key.
type KeyPoolStore interface {
	// ClaimFreeKey atomically selects one free key for the key holder,
	// algorithm and usage, marks it in use with acquired_at set to now, and
	// returns it. Returns ErrNoFreeKey when the pool is exhausted.
	ClaimFreeKey(ctx context.Context, keyHolderID int64, algorithm string, usage models.KeyUsage) (*models.PoolKey, error)

	// ReleaseKey flips a leased key back to free and clears acquired_at.
	// Releasing a free or unknown key is a success no-op.
	ReleaseKey(ctx context.Context, keyID uuid.UUID) error

	// DeleteKey permanently removes a key record. Deleting an unknown key is
	// a success no-op.
	DeleteKey(ctx context.Context, keyID uuid.UUID) error

	// InsertKey adds a newly generated key in the free state.
	InsertKey(ctx context.Context, key *models.PoolKey) error

	// CountFreeKeys returns the free-key count for a pool profile.
	CountFreeKeys(ctx context.Context, keyHolderID int64, algorithm string, usage models.KeyUsage) (int, error)

	// StaleLeasedKeys returns leased keys whose acquired_at is older than
	// the cutoff, oldest first.
	StaleLeasedKeys(ctx context.Context, cutoff time.Time) ([]*models.PoolKey, error)

	// ReclaimStaleKey flips a leased key back to free, but only while its
	// acquired_at is still older than the cutoff. The condition must be
	// checked and applied in one atomic conditional update so a key
	// re-leased after being listed stale is never touched. Returns whether
	// the key was reclaimed.
	ReclaimStaleKey(ctx context.Context, keyID uuid.UUID, cutoff time.Time) (bool, error)

	// DestroyStaleKey permanently removes a leased key under the same
	// atomic predicate as ReclaimStaleKey. Returns whether the key was
	// removed.
	DestroyStaleKey(ctx context.Context, keyID uuid.UUID, cutoff time.Time) (bool, error)
}

// SessionStore defines storage operations for signing sessions.
type SessionStore interface {
	// Get returns a session by ID, or ErrSessionNotFound.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.SigningSession, error)

	// Create persists a new session.
	Create(ctx context.Context, session *models.SigningSession) error

	// Delete removes a session. Returns ErrSessionNotFound when no row
	// matched; callers that need idempotent deletes ignore it.
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// Expired returns sessions whose expiry is at or before the cutoff,
	// oldest first.
	Expired(ctx context.Context, cutoff time.Time) ([]*models.SigningSession, error)
}

// CredentialStore defines storage operations for long-term credential
// metadata and session credentials.
type CredentialStore interface {
	// GetCredential returns long-term credential metadata by ID, or
	// ErrCredentialNotFound.
	GetCredential(ctx context.Context, credentialID string) (*models.CredentialMetadata, error)

	// GetSessionCredential returns a session credential by ID, or
	// ErrCredentialNotFound.
	GetSessionCredential(ctx context.Context, credentialID string) (*models.SessionCredential, error)

	// CreateSessionCredential persists a session credential bound to a
	// leased pool key.
	CreateSessionCredential(ctx context.Context, cred *models.SessionCredential) error

	// DeleteSessionCredential removes a session credential. Deleting an
	// unknown credential is a success no-op.
	DeleteSessionCredential(ctx context.Context, credentialID string) error
}
