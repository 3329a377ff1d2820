package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the derived state of a signing session.
type SessionStatus string

const (
	// SessionStatusNew applies only before first persistence.
	SessionStatusNew SessionStatus = "NEW"
	// SessionStatusActive means the expiry is still in the future.
	SessionStatusActive SessionStatus = "ACTIVE"
	// SessionStatusExpired means the expiry has passed.
	SessionStatusExpired SessionStatus = "EXPIRED"
)

// SigningSession is a time-bounded binding between a caller's session
// credential and a leased session key. It is the unit of multi-call reuse of
// that lease.
type SigningSession struct {
	SessionID    uuid.UUID // UUIDv7
	CredentialID string
	ExpiresAt    time.Time

	// Status is NEW on freshly constructed sessions and re-derived from
	// ExpiresAt whenever the session is loaded or persisted.
	Status SessionStatus
}

// NewSigningSession creates an unpersisted session bound to a session
// credential.
func NewSigningSession(credentialID string, expiresAt time.Time) *SigningSession {
	return &SigningSession{
		SessionID:    uuid.Must(uuid.NewV7()),
		CredentialID: credentialID,
		ExpiresAt:    expiresAt,
		Status:       SessionStatusNew,
	}
}

// DeriveStatus classifies the session as ACTIVE or EXPIRED against now.
func (s *SigningSession) DeriveStatus(now time.Time) SessionStatus {
	if s.ExpiresAt.After(now) {
		return SessionStatusActive
	}
	return SessionStatusExpired
}
