package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.SigningSession
}

// NewSessionStore creates a new in-memory signing session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*models.SigningSession),
	}
}

// Get retrieves a session by ID with its status re-derived.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.SigningSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}

	copied := *session
	copied.Status = copied.DeriveStatus(time.Now())
	return &copied, nil
}

// Create persists a new session.
func (s *SessionStore) Create(ctx context.Context, session *models.SigningSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.sessions[session.SessionID] = &copied
	return nil
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return store.ErrSessionNotFound
	}

	delete(s.sessions, sessionID)
	return nil
}

// Expired returns sessions whose expiry is at or before the cutoff, oldest
// first.
func (s *SessionStore) Expired(ctx context.Context, cutoff time.Time) ([]*models.SigningSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var expired []*models.SigningSession
	for _, session := range s.sessions {
		if !session.ExpiresAt.After(cutoff) {
			copied := *session
			copied.Status = copied.DeriveStatus(now)
			expired = append(expired, &copied)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})

	return expired, nil
}
