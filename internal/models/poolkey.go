package models

import (
	"time"

	"github.com/google/uuid"
)

// PoolKey is a concrete generated key record owned by a key holder.
//
// Lifecycle: created free by replenishment, leased by flipping InUse under an
// atomic conditional update, then either released back to free or destroyed
// (one-time keys never sign twice).
type PoolKey struct {
	KeyID       uuid.UUID // UUIDv7
	KeyHolderID int64
	Alias       string
	Algorithm   string
	Usage       KeyUsage

	InUse      bool
	AcquiredAt *time.Time // nil while free

	CreatedAt time.Time
}
