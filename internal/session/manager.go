// Package session manages time-bounded signing sessions binding a caller to
// a leased session key across multiple signing calls.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/ca"
	"github.com/trustedge/signhub/internal/keypool"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
	"github.com/trustedge/signhub/internal/store"
	"github.com/trustedge/signhub/internal/telemetry"
)

// Manager owns the lifecycle of signing sessions and their bound session
// credentials.
type Manager struct {
	sessions store.SessionStore
	creds    store.CredentialStore
	pool     *keypool.Manager

	// ca, when set, issues a certificate for each session credential and
	// revokes it again during cleanup.
	ca ca.Client
}

// Option configures optional manager collaborators.
type Option func(*Manager)

// WithCA enables certificate issuance for session credentials.
func WithCA(client ca.Client) Option {
	return func(m *Manager) {
		m.ca = client
	}
}

// NewManager creates a signing session manager.
func NewManager(sessions store.SessionStore, creds store.CredentialStore, pool *keypool.Manager, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		creds:    creds,
		pool:     pool,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the session classified ACTIVE or EXPIRED, or (nil, nil) when
// no session exists. Absence is not an error.
func (m *Manager) Get(ctx context.Context, sessionID uuid.UUID) (*models.SigningSession, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
	}
	return session, nil
}

// SaveNew persists a session that has never been stored. The returned status
// is re-derived from the stored expiry. Saving a non-NEW session is rejected:
// sessions are immutable through this path once persisted.
func (m *Manager) SaveNew(ctx context.Context, session *models.SigningSession) (models.SessionStatus, error) {
	if session.Status != models.SessionStatusNew {
		return "", sigerr.Newf(sigerr.CategoryConfiguration,
			"cannot save session %s with status %s, only NEW sessions may be saved", session.SessionID, session.Status)
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return "", sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	status := session.DeriveStatus(time.Now())
	session.Status = status

	telemetry.GetMetrics().SessionsCreatedTotal.Add(ctx, 1)
	return status, nil
}

// Delete removes a session. Deleting a non-existent session is success.
func (m *Manager) Delete(ctx context.Context, session *models.SigningSession) error {
	err := m.sessions.Delete(ctx, session.SessionID)
	if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return sigerr.Wrap(sigerr.CategoryRemote, err)
	}
	return nil
}

// ExpiredSessions returns sessions whose expiry is at least grace in the
// past, oldest first.
func (m *Manager) ExpiredSessions(ctx context.Context, grace time.Duration) ([]*models.SigningSession, error) {
	sessions, err := m.sessions.Expired(ctx, time.Now().Add(-grace))
	if err != nil {
		return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
	}
	return sessions, nil
}

// Create leases a session key, binds it to a new session credential and
// persists the session. The lease is released again if any later step fails.
func (m *Manager) Create(ctx context.Context, userID string, keyHolderID int64, algorithm string, multisign int, ttl time.Duration) (*models.SigningSession, error) {
	key, err := m.pool.Lease(ctx, keyHolderID, algorithm, models.KeyUsageSession)
	if err != nil {
		return nil, err
	}

	cred := &models.SessionCredential{
		CredentialID: uuid.Must(uuid.NewV7()).String(),
		UserID:       userID,
		KeyID:        key.KeyID,
		KeyAlias:     key.Alias,
		KeyHolderID:  key.KeyHolderID,
		Multisign:    multisign,
	}

	if err := m.creds.CreateSessionCredential(ctx, cred); err != nil {
		m.releaseBestEffort(ctx, key.KeyID)
		return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	if m.ca != nil {
		if _, err := m.ca.IssueCertificate(ctx, userID, key.Alias); err != nil {
			if derr := m.creds.DeleteSessionCredential(ctx, cred.CredentialID); derr != nil {
				log.Warn().Err(derr).Str("credential_id", cred.CredentialID).Msg("Failed to roll back session credential")
			}
			m.releaseBestEffort(ctx, key.KeyID)
			return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
		}
	}

	session := models.NewSigningSession(cred.CredentialID, time.Now().Add(ttl))
	if _, err := m.SaveNew(ctx, session); err != nil {
		m.revokeBestEffort(ctx, userID, "sessionAborted")
		if derr := m.creds.DeleteSessionCredential(ctx, cred.CredentialID); derr != nil {
			log.Warn().Err(derr).Str("credential_id", cred.CredentialID).Msg("Failed to roll back session credential")
		}
		m.releaseBestEffort(ctx, key.KeyID)
		return nil, err
	}

	log.Info().
		Str("session_id", session.SessionID.String()).
		Str("credential_id", cred.CredentialID).
		Str("key_alias", key.Alias).
		Time("expires_at", session.ExpiresAt).
		Msg("Created signing session")

	return session, nil
}

// CleanupExpired removes sessions expired past the grace period and returns
// their bound session keys to the pool. The two steps run per session: delete
// the session row, then release the key, so a crash between them leaves only
// a lease the reclaimer will recover.
func (m *Manager) CleanupExpired(ctx context.Context, grace time.Duration) (int, error) {
	expired, err := m.ExpiredSessions(ctx, grace)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, session := range expired {
		cred, err := m.creds.GetSessionCredential(ctx, session.CredentialID)
		if err != nil && !errors.Is(err, store.ErrCredentialNotFound) {
			log.Warn().Err(err).
				Str("session_id", session.SessionID.String()).
				Msg("Failed to resolve session credential during cleanup")
			continue
		}

		if err := m.Delete(ctx, session); err != nil {
			log.Warn().Err(err).
				Str("session_id", session.SessionID.String()).
				Msg("Failed to delete expired session")
			continue
		}

		if cred != nil {
			m.revokeBestEffort(ctx, cred.UserID, "sessionExpired")
			if err := m.creds.DeleteSessionCredential(ctx, cred.CredentialID); err != nil {
				log.Warn().Err(err).Str("credential_id", cred.CredentialID).Msg("Failed to delete session credential")
			}
			if err := m.pool.Release(ctx, cred.KeyID); err != nil {
				log.Warn().Err(err).
					Str("key_id", cred.KeyID.String()).
					Msg("Failed to release session key, reclaimer will recover it")
			}
		}

		cleaned++
	}

	if cleaned > 0 {
		telemetry.GetMetrics().SessionsCleanedTotal.Add(ctx, int64(cleaned))
		log.Info().Int("count", cleaned).Msg("Cleaned up expired signing sessions")
	}

	return cleaned, nil
}

func (m *Manager) releaseBestEffort(ctx context.Context, keyID uuid.UUID) {
	if err := m.pool.Release(ctx, keyID); err != nil {
		log.Warn().Err(err).Str("key_id", keyID.String()).Msg("Failed to release session key after aborted creation")
	}
}

func (m *Manager) revokeBestEffort(ctx context.Context, endEntity, reason string) {
	if m.ca == nil {
		return
	}
	if err := m.ca.RevokeCertificate(ctx, endEntity, reason); err != nil {
		log.Warn().Err(err).Str("end_entity", endEntity).Msg("Failed to revoke session certificate")
	}
}
