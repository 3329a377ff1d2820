package token

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/trustedge/signhub/internal/keypool"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/session"
	"github.com/trustedge/signhub/internal/sigerr"
	"github.com/trustedge/signhub/internal/store"
)

// Config carries the identifiers the caller presented to select a token
// strategy. Exactly one of the three combinations below is valid:
//
//   - CredentialID set, SessionID empty: long-term credential
//   - SignatureQualifier set, CredentialID and SessionID empty: one-time key
//   - SessionID set, CredentialID empty: signing session
type Config struct {
	CredentialID       string
	SignatureQualifier string
	SessionID          string
}

// Selector resolves a token config to a concrete SigningToken. The strategy
// choice happens here, once, before any key is touched for invalid configs.
type Selector struct {
	pool     *keypool.Manager
	creds    store.CredentialStore
	sessions *session.Manager
}

// NewSelector creates a token selector.
func NewSelector(pool *keypool.Manager, creds store.CredentialStore, sessions *session.Manager) *Selector {
	return &Selector{
		pool:     pool,
		creds:    creds,
		sessions: sessions,
	}
}

// Acquire obtains a SigningToken for the request. keyHolderID and algorithm
// locate the one-time pool of the already-selected worker; they are unused
// for long-term and session tokens, whose key binding is stored.
func (s *Selector) Acquire(ctx context.Context, cfg Config, keyHolderID int64, algorithm string) (SigningToken, error) {
	switch {
	case cfg.CredentialID != "" && cfg.SessionID != "":
		return nil, sigerr.New(sigerr.CategoryConfiguration,
			"both credential id and session id presented, exactly one token source is allowed")

	case cfg.SessionID != "":
		return s.acquireSession(ctx, cfg.SessionID)

	case cfg.CredentialID != "":
		return s.acquireLongTerm(ctx, cfg.CredentialID)

	case cfg.SignatureQualifier != "":
		return s.acquireOneTime(ctx, keyHolderID, algorithm)

	default:
		return nil, sigerr.New(sigerr.CategoryConfiguration,
			"no credential id, signature qualifier or session id presented")
	}
}

func (s *Selector) acquireLongTerm(ctx context.Context, credentialID string) (SigningToken, error) {
	cred, err := s.creds.GetCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return nil, sigerr.Newf(sigerr.CategoryConfiguration, "unknown credential %q", credentialID)
		}
		return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	if cred.Disabled {
		return nil, sigerr.Newf(sigerr.CategoryConfiguration, "credential %q is disabled", credentialID)
	}

	return NewLongTermToken(cred), nil
}

func (s *Selector) acquireSession(ctx context.Context, sessionID string) (SigningToken, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, sigerr.Newf(sigerr.CategoryConfiguration, "malformed session id %q", sessionID)
	}

	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, sigerr.Newf(sigerr.CategoryConfiguration, "unknown session %q", sessionID)
	}

	cred, err := s.creds.GetSessionCredential(ctx, sess.CredentialID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return nil, sigerr.Newf(sigerr.CategoryConfiguration,
				"session %q has no session credential", sessionID)
		}
		return nil, sigerr.Wrap(sigerr.CategoryRemote, err)
	}

	return NewSessionToken(cred, sess), nil
}

func (s *Selector) acquireOneTime(ctx context.Context, keyHolderID int64, algorithm string) (SigningToken, error) {
	key, err := s.pool.Lease(ctx, keyHolderID, algorithm, models.KeyUsageOneTime)
	if err != nil {
		return nil, err
	}

	limit := 1
	if profile, ok := s.pool.Profile(keyHolderID, algorithm, models.KeyUsageOneTime); ok && profile.SignatureLimit > 0 {
		limit = profile.SignatureLimit
	}

	return NewOneTimeToken(key, limit, s.pool), nil
}
