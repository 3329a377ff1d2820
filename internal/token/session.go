package token

import (
	"context"

	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/telemetry"
)

// SessionToken wraps a session credential and its signing session. The
// session key stays leased for the session lifetime; cleanup is a no-op.
type SessionToken struct {
	cred    *models.SessionCredential
	session *models.SigningSession
}

// NewSessionToken wraps a resolved session credential and its session.
func NewSessionToken(cred *models.SessionCredential, session *models.SigningSession) *SessionToken {
	return &SessionToken{
		cred:    cred,
		session: session,
	}
}

// KeyAlias implements SigningToken.
func (t *SessionToken) KeyAlias() string {
	return t.cred.KeyAlias
}

// KeyHolderID implements SigningToken.
func (t *SessionToken) KeyHolderID() int64 {
	return t.cred.KeyHolderID
}

// CanSignData implements SigningToken. Expiry is a hard gate: an EXPIRED
// session fails capacity even when the numeric limits would pass.
func (t *SessionToken) CanSignData(docCount, sadCount int) bool {
	if t.session.Status != models.SessionStatusActive {
		telemetry.GetMetrics().SessionExpiryRejects.Add(context.Background(), 1)
		return false
	}
	return docCount <= min(t.cred.Multisign, sadCount)
}

// Cleanup implements SigningToken. The session key outlives the request.
func (t *SessionToken) Cleanup(ctx context.Context) error {
	return nil
}
