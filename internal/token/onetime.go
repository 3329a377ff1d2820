package token

import (
	"context"

	"github.com/trustedge/signhub/internal/keypool"
	"github.com/trustedge/signhub/internal/models"
)

// OneTimeToken wraps a pool key leased for exactly one request. The key is
// destroyed on cleanup, success or failure: a one-time key must never sign
// twice.
type OneTimeToken struct {
	key   *models.PoolKey
	limit int
	pool  *keypool.Manager
}

// NewOneTimeToken wraps a freshly leased one-time key with the pool's
// per-lease signature ceiling.
func NewOneTimeToken(key *models.PoolKey, limit int, pool *keypool.Manager) *OneTimeToken {
	return &OneTimeToken{
		key:   key,
		limit: limit,
		pool:  pool,
	}
}

// KeyAlias implements SigningToken.
func (t *OneTimeToken) KeyAlias() string {
	return t.key.Alias
}

// KeyHolderID implements SigningToken.
func (t *OneTimeToken) KeyHolderID() int64 {
	return t.key.KeyHolderID
}

// CanSignData implements SigningToken.
func (t *OneTimeToken) CanSignData(docCount, sadCount int) bool {
	return docCount <= min(t.limit, sadCount)
}

// Cleanup destroys the leased key.
func (t *OneTimeToken) Cleanup(ctx context.Context) error {
	return t.pool.Destroy(ctx, t.key)
}
