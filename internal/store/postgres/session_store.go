package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/store"
)

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed signing session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Get retrieves a session by ID. The status is re-derived from the stored
// expiry.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.SigningSession, error) {
	query := `
		SELECT session_id, credential_id, expires_at
		FROM signing_sessions
		WHERE session_id = $1
	`

	var session models.SigningSession
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.CredentialID,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, mapPostgresError(err)
	}

	session.Status = session.DeriveStatus(time.Now())
	return &session, nil
}

// Create persists a new session.
func (s *SessionStore) Create(ctx context.Context, session *models.SigningSession) error {
	query := `
		INSERT INTO signing_sessions (session_id, credential_id, expires_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.CredentialID,
		session.ExpiresAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("credential_id", session.CredentialID).
		Time("expires_at", session.ExpiresAt).
		Msg("Created signing session")

	return nil
}

// Delete removes a session by ID. Returns store.ErrSessionNotFound when no
// row matched.
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM signing_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().Str("session_id", sessionID.String()).Msg("Deleted signing session")
	return nil
}

// Expired returns sessions whose expiry is at or before the cutoff, oldest
// first.
func (s *SessionStore) Expired(ctx context.Context, cutoff time.Time) ([]*models.SigningSession, error) {
	query := `
		SELECT session_id, credential_id, expires_at
		FROM signing_sessions
		WHERE expires_at <= $1
		ORDER BY expires_at ASC
	`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var sessions []*models.SigningSession
	now := time.Now()
	for rows.Next() {
		var session models.SigningSession
		if err := rows.Scan(&session.SessionID, &session.CredentialID, &session.ExpiresAt); err != nil {
			return nil, mapPostgresError(err)
		}
		session.Status = session.DeriveStatus(now)
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return sessions, nil
}
