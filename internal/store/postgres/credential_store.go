package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/store"
)

// CredentialStore implements store.CredentialStore using PostgreSQL.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore creates a new PostgreSQL-backed credential store.
func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// GetCredential returns long-term credential metadata by ID.
func (s *CredentialStore) GetCredential(ctx context.Context, credentialID string) (*models.CredentialMetadata, error) {
	query := `
		SELECT credential_id, user_id, key_alias, key_holder_id,
		       signature_qualifier, multisign, disabled
		FROM credentials
		WHERE credential_id = $1
	`

	var cred models.CredentialMetadata
	err := s.pool.QueryRow(ctx, query, credentialID).Scan(
		&cred.CredentialID,
		&cred.UserID,
		&cred.KeyAlias,
		&cred.KeyHolderID,
		&cred.SignatureQualifier,
		&cred.Multisign,
		&cred.Disabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCredentialNotFound
		}
		return nil, mapPostgresError(err)
	}

	return &cred, nil
}

// GetSessionCredential returns a session credential by ID.
func (s *CredentialStore) GetSessionCredential(ctx context.Context, credentialID string) (*models.SessionCredential, error) {
	query := `
		SELECT credential_id, user_id, key_id, key_alias, key_holder_id, multisign
		FROM session_credentials
		WHERE credential_id = $1
	`

	var cred models.SessionCredential
	err := s.pool.QueryRow(ctx, query, credentialID).Scan(
		&cred.CredentialID,
		&cred.UserID,
		&cred.KeyID,
		&cred.KeyAlias,
		&cred.KeyHolderID,
		&cred.Multisign,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCredentialNotFound
		}
		return nil, mapPostgresError(err)
	}

	return &cred, nil
}

// CreateSessionCredential persists a session credential bound to a leased
// pool key.
func (s *CredentialStore) CreateSessionCredential(ctx context.Context, cred *models.SessionCredential) error {
	query := `
		INSERT INTO session_credentials (
			credential_id, user_id, key_id, key_alias, key_holder_id, multisign
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		cred.CredentialID,
		cred.UserID,
		cred.KeyID,
		cred.KeyAlias,
		cred.KeyHolderID,
		cred.Multisign,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("credential_id", cred.CredentialID).
		Str("key_id", cred.KeyID.String()).
		Msg("Created session credential")

	return nil
}

// DeleteSessionCredential removes a session credential. Deleting an unknown
// credential is a success no-op.
func (s *CredentialStore) DeleteSessionCredential(ctx context.Context, credentialID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM session_credentials WHERE credential_id = $1`, credentialID)
	if err != nil {
		return mapPostgresError(err)
	}
	return nil
}
