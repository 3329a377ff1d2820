package ca

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is an in-memory CA client for tests.
type FakeClient struct {
	mu sync.Mutex

	// Err, when set, is wrapped in a RemoteError by every call.
	Err error

	Issued  []string
	Revoked []string
}

// IssueCertificate implements Client.
func (f *FakeClient) IssueCertificate(ctx context.Context, endEntity, keyAlias string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, &RemoteError{Operation: "issue", EndEntity: endEntity, Err: f.Err}
	}
	f.Issued = append(f.Issued, endEntity)
	return [][]byte{[]byte(fmt.Sprintf("cert(%s)", endEntity))}, nil
}

// RekeyCertificate implements Client.
func (f *FakeClient) RekeyCertificate(ctx context.Context, endEntity, keyAlias string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, &RemoteError{Operation: "rekey", EndEntity: endEntity, Err: f.Err}
	}
	return [][]byte{[]byte(fmt.Sprintf("cert(%s)", endEntity))}, nil
}

// RevokeCertificate implements Client.
func (f *FakeClient) RevokeCertificate(ctx context.Context, endEntity string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return &RemoteError{Operation: "revoke", EndEntity: endEntity, Err: f.Err}
	}
	f.Revoked = append(f.Revoked, endEntity)
	return nil
}
