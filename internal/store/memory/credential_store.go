package memory

import (
	"context"
	"sync"

	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/store"
)

// CredentialStore implements store.CredentialStore using in-memory storage.
type CredentialStore struct {
	mu           sync.RWMutex
	credentials  map[string]*models.CredentialMetadata
	sessionCreds map[string]*models.SessionCredential
}

// NewCredentialStore creates a new in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		credentials:  make(map[string]*models.CredentialMetadata),
		sessionCreds: make(map[string]*models.SessionCredential),
	}
}

// PutCredential stores long-term credential metadata, for seeding tests and
// local development.
func (s *CredentialStore) PutCredential(cred *models.CredentialMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cred
	s.credentials[cred.CredentialID] = &copied
}

// GetCredential returns long-term credential metadata by ID.
func (s *CredentialStore) GetCredential(ctx context.Context, credentialID string) (*models.CredentialMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[credentialID]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}

	copied := *cred
	return &copied, nil
}

// GetSessionCredential returns a session credential by ID.
func (s *CredentialStore) GetSessionCredential(ctx context.Context, credentialID string) (*models.SessionCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.sessionCreds[credentialID]
	if !ok {
		return nil, store.ErrCredentialNotFound
	}

	copied := *cred
	return &copied, nil
}

// CreateSessionCredential persists a session credential.
func (s *CredentialStore) CreateSessionCredential(ctx context.Context, cred *models.SessionCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cred
	s.sessionCreds[cred.CredentialID] = &copied
	return nil
}

// DeleteSessionCredential removes a session credential. No-op for unknown
// credentials.
func (s *CredentialStore) DeleteSessionCredential(ctx context.Context, credentialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessionCreds, credentialID)
	return nil
}
