// Package ca defines the certificate authority client consumed during
// credential provisioning. It is not on the signing hot path.
package ca

import (
	"context"
	"fmt"
)

// RemoteError is a typed failure from the certificate authority.
type RemoteError struct {
	Operation string
	EndEntity string
	Err       error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ca %s for %q failed: %v", e.Operation, e.EndEntity, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Client issues, rekeys and revokes end-entity certificates. Key material
// never leaves the key holder, so certificates are requested against the
// holder-side key alias and the CA resolves the public key from it.
type Client interface {
	// IssueCertificate requests certificate issuance for an end entity
	// against the key stored under the alias. Returns the certificate
	// chain, leaf first.
	IssueCertificate(ctx context.Context, endEntity, keyAlias string) ([][]byte, error)

	// RekeyCertificate re-issues the end entity's certificate over the key
	// stored under the alias.
	RekeyCertificate(ctx context.Context, endEntity, keyAlias string) ([][]byte, error)

	// RevokeCertificate revokes all active certificates of the end entity.
	RevokeCertificate(ctx context.Context, endEntity string, reason string) error
}
