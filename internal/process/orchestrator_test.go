package process

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/trustedge/signhub/internal/backend"
	"github.com/trustedge/signhub/internal/capability"
	"github.com/trustedge/signhub/internal/keypool"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/session"
	"github.com/trustedge/signhub/internal/sigerr"
	"github.com/trustedge/signhub/internal/signer"
	"github.com/trustedge/signhub/internal/store/memory"
	"github.com/trustedge/signhub/internal/token"
)

const sha256OID = "2.16.840.1.101.3.4.2.1"

type fixture struct {
	orchestrator *Orchestrator
	client       *backend.FakeClient
	keygen       *backend.FakeKeyGenerator
	keys         *memory.KeyPoolStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	holder := &models.KeyHolder{
		ID:   1,
		Name: "hsm-1",
		Profiles: []models.KeyPoolProfile{
			{KeyAlgorithm: "RSA", KeySpec: "2048", AliasPrefix: "ot-rsa", DesiredSize: 2, Usage: models.KeyUsageOneTime, SignatureLimit: 1},
		},
	}

	workers := []*models.Worker{
		{
			ID:        1,
			Name:      "pades-worker",
			KeyHolder: holder,
			Capabilities: models.Capabilities{
				SignatureQualifiers: []string{"eu_eidas_qes"},
				SignatureFormat:     "P",
				ConformanceLevel:    "AdES-B-B",
				SignaturePackaging:  "ENVELOPED",
				SignatureAlgorithms: []string{"SHA256withRSA"},
				DocumentTypes:       []models.DocumentType{models.DocumentTypeHash, models.DocumentTypeContent},
			},
		},
	}

	keys := memory.NewKeyPoolStore()
	keygen := &backend.FakeKeyGenerator{}
	pool, err := keypool.NewManager(keys, keygen, []*models.KeyHolder{holder})
	require.NoError(t, err)

	creds := memory.NewCredentialStore()
	sessions := session.NewManager(memory.NewSessionStore(), creds, pool)

	client := &backend.FakeClient{}
	orchestrator := NewOrchestrator(
		capability.NewSelector(workers),
		token.NewSelector(pool, creds, sessions),
		signer.New(client),
	)

	return &fixture{
		orchestrator: orchestrator,
		client:       client,
		keygen:       keygen,
		keys:         keys,
	}
}

func (f *fixture) seedOneTimeKey(t *testing.T) uuid.UUID {
	t.Helper()

	id := uuid.Must(uuid.NewV7())
	require.NoError(t, f.keys.InsertKey(context.Background(), &models.PoolKey{
		KeyID:       id,
		KeyHolderID: 1,
		Alias:       "ot-rsa-" + id.String(),
		Algorithm:   "RSA",
		Usage:       models.KeyUsageOneTime,
		CreatedAt:   time.Now(),
	}))
	return id
}

func hashOf(data string) string {
	sum := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func hashRequest(hashes ...string) *Request {
	return &Request{
		Hashes:             hashes,
		DigestAlgorithm:    "SHA-256",
		SignatureAlgorithm: "SHA256withRSA",
		SignatureFormat:    "P",
		ConformanceLevel:   "AdES-B-B",
	}
}

func grantFor(hashes ...string) *models.AuthorizationGrant {
	return &models.AuthorizationGrant{
		UserID:           "user-1",
		NumSignatures:    len(hashes),
		Hashes:           hashes,
		HashAlgorithmOID: sha256OID,
	}
}

func TestOrchestratorSign(t *testing.T) {
	ctx := context.Background()
	tokenCfg := token.Config{SignatureQualifier: "eu_eidas_qes"}

	t.Run("signs an authorized hash and destroys the one-time key", func(t *testing.T) {
		f := newFixture(t)
		keyID := f.seedOneTimeKey(t)
		h := hashOf("doc-1")

		signed, err := f.orchestrator.Sign(ctx, hashRequest(h), tokenCfg, grantFor(h))
		require.NoError(t, err)
		require.Len(t, signed.Signatures, 1)

		// Cleanup destroyed the leased one-time key.
		_, ok := f.keys.Key(keyID)
		require.False(t, ok)
		require.Len(t, f.keygen.Removed, 1)
	})

	t.Run("unauthorized hash aborts before any key is touched", func(t *testing.T) {
		f := newFixture(t)
		keyID := f.seedOneTimeKey(t)

		_, err := f.orchestrator.Sign(ctx, hashRequest(hashOf("doc-1")), tokenCfg, grantFor(hashOf("other")))
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryUnauthorized, sigerr.CategoryOf(err))

		// The pool key was never leased, let alone destroyed.
		stored, ok := f.keys.Key(keyID)
		require.True(t, ok)
		require.False(t, stored.InUse)
		require.Empty(t, f.client.Calls)
	})

	t.Run("capacity failure still cleans up the token", func(t *testing.T) {
		f := newFixture(t)
		keyID := f.seedOneTimeKey(t)
		h1, h2 := hashOf("doc-1"), hashOf("doc-2")

		// The pool's per-lease limit is one signature; two hashes exceed it.
		_, err := f.orchestrator.Sign(ctx, hashRequest(h1, h2), tokenCfg, grantFor(h1, h2))
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryCapacity, sigerr.CategoryOf(err))

		_, ok := f.keys.Key(keyID)
		require.False(t, ok)
		require.Empty(t, f.client.Calls)
	})

	t.Run("backend failure still cleans up the token", func(t *testing.T) {
		f := newFixture(t)
		keyID := f.seedOneTimeKey(t)
		f.client.SignErr = errors.New("hsm offline")
		h := hashOf("doc-1")

		_, err := f.orchestrator.Sign(ctx, hashRequest(h), tokenCfg, grantFor(h))
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryRemote, sigerr.CategoryOf(err))

		_, ok := f.keys.Key(keyID)
		require.False(t, ok)
	})

	t.Run("canceled context still cleans up the token", func(t *testing.T) {
		f := newFixture(t)
		keyID := f.seedOneTimeKey(t)
		f.client.SignErr = context.Canceled
		h := hashOf("doc-1")

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		// Cleanup runs under a detached context, so the key is destroyed
		// even though the request context is already canceled.
		_, err := f.orchestrator.Sign(canceled, hashRequest(h), tokenCfg, grantFor(h))
		require.Error(t, err)

		_, ok := f.keys.Key(keyID)
		require.False(t, ok)
	})

	t.Run("no matching worker is a configuration error", func(t *testing.T) {
		f := newFixture(t)
		f.seedOneTimeKey(t)
		h := hashOf("doc-1")

		req := hashRequest(h)
		req.SignatureFormat = "X"

		_, err := f.orchestrator.Sign(ctx, req, tokenCfg, grantFor(h))
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})

	t.Run("exhausted pool is retryable", func(t *testing.T) {
		f := newFixture(t)
		h := hashOf("doc-1")

		_, err := f.orchestrator.Sign(ctx, hashRequest(h), tokenCfg, grantFor(h))
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryExhausted, sigerr.CategoryOf(err))
		require.True(t, sigerr.IsRetryable(err))
	})

	t.Run("hashes and documents together are rejected", func(t *testing.T) {
		f := newFixture(t)
		h := hashOf("doc-1")

		req := hashRequest(h)
		req.Documents = [][]byte{[]byte("doc-1")}

		_, err := f.orchestrator.Sign(ctx, req, tokenCfg, grantFor(h))
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})

	t.Run("empty request is rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.orchestrator.Sign(ctx, &Request{}, tokenCfg, grantFor(hashOf("x")))
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})

	t.Run("document payload is digested and signed as content", func(t *testing.T) {
		f := newFixture(t)
		f.seedOneTimeKey(t)
		doc := []byte("the document body")

		req := &Request{
			Documents:          [][]byte{doc},
			SignatureAlgorithm: "SHA256withRSA",
			SignatureFormat:    "P",
			SignaturePackaging: "ENVELOPED",
		}

		signed, err := f.orchestrator.Sign(ctx, req, tokenCfg, grantFor(hashOf(string(doc))))
		require.NoError(t, err)
		require.Len(t, signed.Signatures, 1)
		require.Len(t, f.client.Calls, 1)
		require.Contains(t, f.client.Calls[0], "SignContent(pades-worker")
	})
}

func TestKeyAlgorithmFor(t *testing.T) {
	require.Equal(t, "RSA", keyAlgorithmFor("SHA256withRSA"))
	require.Equal(t, "ECDSA", keyAlgorithmFor("SHA512withECDSA"))
	require.Equal(t, "RSA", keyAlgorithmFor("SHA256withRSAandMGF1"))
	require.Equal(t, "RSA", keyAlgorithmFor("SHA384withRSAandMGF1"))
	require.Equal(t, "RSA", keyAlgorithmFor("SHA512withRSAandMGF1"))
	require.Equal(t, "Ed25519", keyAlgorithmFor("Ed25519"))
}
