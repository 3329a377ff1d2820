package models

import "github.com/google/uuid"

// CredentialMetadata describes a long-term credential: a permanently
// provisioned key/certificate pair owned by a user and reused until rekeyed
// or removed.
type CredentialMetadata struct {
	CredentialID string
	UserID       string

	// KeyAlias and KeyHolderID locate the bound key material.
	KeyAlias    string
	KeyHolderID int64

	SignatureQualifier string

	// Multisign is the maximum number of documents one authorized request
	// may sign with this credential.
	Multisign int

	Disabled bool
}

// SessionCredential binds a leased session-pool key to a signing session for
// reuse across multiple signing calls.
type SessionCredential struct {
	CredentialID string
	UserID       string

	// KeyID is the leased pool key backing this credential. It is released
	// back to its pool when the session is cleaned up.
	KeyID       uuid.UUID
	KeyAlias    string
	KeyHolderID int64

	Multisign int
}
