package token

import (
	"context"

	"github.com/trustedge/signhub/internal/models"
)

// LongTermToken wraps the caller's permanently provisioned credential. The
// underlying key is reused across calls by design, so cleanup is a no-op.
type LongTermToken struct {
	cred *models.CredentialMetadata
}

// NewLongTermToken wraps resolved long-term credential metadata.
func NewLongTermToken(cred *models.CredentialMetadata) *LongTermToken {
	return &LongTermToken{cred: cred}
}

// KeyAlias implements SigningToken.
func (t *LongTermToken) KeyAlias() string {
	return t.cred.KeyAlias
}

// KeyHolderID implements SigningToken.
func (t *LongTermToken) KeyHolderID() int64 {
	return t.cred.KeyHolderID
}

// CanSignData implements SigningToken.
func (t *LongTermToken) CanSignData(docCount, sadCount int) bool {
	return docCount <= min(t.cred.Multisign, sadCount)
}

// Cleanup implements SigningToken. Nothing to release.
func (t *LongTermToken) Cleanup(ctx context.Context) error {
	return nil
}
