package backend

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is a scriptable in-memory Client for tests and local
// development. By default it returns one deterministic signature per input.
type FakeClient struct {
	mu sync.Mutex

	// SignErr, when set, is returned by every signing call.
	SignErr error

	// ShortBatch, when true, drops the last signature from batch responses
	// to simulate a misbehaving backend.
	ShortBatch bool

	// WithEvidence, when true, attaches canned evidence to responses that
	// requested it.
	WithEvidence bool

	// Calls records every signing invocation in order.
	Calls []string
}

func (f *FakeClient) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

func (f *FakeClient) evidence(opts Options) *Evidence {
	if !opts.IncludeEvidence || !f.WithEvidence {
		return nil
	}
	return &Evidence{
		OCSPResponses: [][]byte{[]byte("ocsp")},
		CRLs:          [][]byte{[]byte("crl")},
		Certificates:  [][]byte{[]byte("cert")},
	}
}

// SignDigest implements Client.
func (f *FakeClient) SignDigest(ctx context.Context, worker, keyAlias string, digest []byte, digestAlgorithm string, opts Options) (*Result, error) {
	f.record(fmt.Sprintf("SignDigest(%s,%s)", worker, keyAlias))
	if f.SignErr != nil {
		return nil, f.SignErr
	}
	return &Result{
		Signature: []byte(fmt.Sprintf("sig(%s/%x)", keyAlias, digest)),
		Evidence:  f.evidence(opts),
	}, nil
}

// SignDigests implements Client.
func (f *FakeClient) SignDigests(ctx context.Context, worker, keyAlias string, digests [][]byte, digestAlgorithm string, opts Options) (*BatchResult, error) {
	f.record(fmt.Sprintf("SignDigests(%s,%s,%d)", worker, keyAlias, len(digests)))
	if f.SignErr != nil {
		return nil, f.SignErr
	}

	sigs := make([][]byte, 0, len(digests))
	for _, d := range digests {
		sigs = append(sigs, []byte(fmt.Sprintf("sig(%s/%x)", keyAlias, d)))
	}
	if f.ShortBatch && len(sigs) > 0 {
		sigs = sigs[:len(sigs)-1]
	}

	return &BatchResult{
		Signatures: sigs,
		Evidence:   f.evidence(opts),
	}, nil
}

// SignContent implements Client.
func (f *FakeClient) SignContent(ctx context.Context, worker, keyAlias string, content []byte, opts Options) (*Result, error) {
	f.record(fmt.Sprintf("SignContent(%s,%s)", worker, keyAlias))
	if f.SignErr != nil {
		return nil, f.SignErr
	}
	return &Result{
		Signature: []byte(fmt.Sprintf("sig(%s/%d)", keyAlias, len(content))),
		Evidence:  f.evidence(opts),
	}, nil
}

// FakeKeyGenerator is an in-memory KeyGenerator recording generated and
// removed aliases.
type FakeKeyGenerator struct {
	mu sync.Mutex

	// GenerateErr, when set, is returned by every GenerateKey call.
	GenerateErr error

	// FailAfter, when > 0, fails GenerateKey after that many successes.
	FailAfter int

	generated int
	Generated []string
	Removed   []string
}

// GenerateKey implements KeyGenerator.
func (f *FakeKeyGenerator) GenerateKey(ctx context.Context, keyHolderName, alias, algorithm, spec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GenerateErr != nil {
		return f.GenerateErr
	}
	if f.FailAfter > 0 && f.generated >= f.FailAfter {
		return fmt.Errorf("key generation capacity exhausted on %s", keyHolderName)
	}

	f.generated++
	f.Generated = append(f.Generated, alias)
	return nil
}

// RemoveKey implements KeyGenerator.
func (f *FakeKeyGenerator) RemoveKey(ctx context.Context, keyHolderName, alias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Removed = append(f.Removed, alias)
	return nil
}
