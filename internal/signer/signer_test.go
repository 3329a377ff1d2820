package signer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trustedge/signhub/internal/backend"
	"github.com/trustedge/signhub/internal/sigerr"
)

func TestSignHashes(t *testing.T) {
	ctx := context.Background()

	t.Run("single digest takes the single-sign path", func(t *testing.T) {
		fake := &backend.FakeClient{}
		s := New(fake)

		signed, err := s.SignHashes(ctx, &HashRequest{
			Worker:          "pades-worker",
			KeyAlias:        "key-1",
			Digests:         [][]byte{[]byte("digest-1")},
			DigestAlgorithm: "SHA-256",
		})
		require.NoError(t, err)
		require.Len(t, signed.Signatures, 1)
		require.Equal(t, []string{"SignDigest(pades-worker,key-1)"}, fake.Calls)
	})

	t.Run("multiple digests take the batch path", func(t *testing.T) {
		fake := &backend.FakeClient{}
		s := New(fake)

		signed, err := s.SignHashes(ctx, &HashRequest{
			Worker:          "pades-worker",
			KeyAlias:        "key-1",
			Digests:         [][]byte{[]byte("d1"), []byte("d2"), []byte("d3")},
			DigestAlgorithm: "SHA-256",
		})
		require.NoError(t, err)
		require.Len(t, signed.Signatures, 3)
		require.Equal(t, []string{"SignDigests(pades-worker,key-1,3)"}, fake.Calls)
	})

	t.Run("empty request is a configuration error", func(t *testing.T) {
		s := New(&backend.FakeClient{})

		_, err := s.SignHashes(ctx, &HashRequest{Worker: "w", KeyAlias: "k"})
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})

	t.Run("backend failure is a remote error", func(t *testing.T) {
		fake := &backend.FakeClient{SignErr: errors.New("hsm offline")}
		s := New(fake)

		_, err := s.SignHashes(ctx, &HashRequest{
			Worker:   "w",
			KeyAlias: "k",
			Digests:  [][]byte{[]byte("d1")},
		})
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryRemote, sigerr.CategoryOf(err))
		require.True(t, sigerr.IsRetryable(err))
	})

	t.Run("short batch is an invariant violation", func(t *testing.T) {
		fake := &backend.FakeClient{ShortBatch: true}
		s := New(fake)

		_, err := s.SignHashes(ctx, &HashRequest{
			Worker:   "w",
			KeyAlias: "k",
			Digests:  [][]byte{[]byte("d1"), []byte("d2")},
		})
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryInvariant, sigerr.CategoryOf(err))
		require.False(t, sigerr.IsRetryable(err))
	})

	t.Run("evidence is forwarded when requested", func(t *testing.T) {
		fake := &backend.FakeClient{WithEvidence: true}
		s := New(fake)

		signed, err := s.SignHashes(ctx, &HashRequest{
			Worker:          "w",
			KeyAlias:        "k",
			Digests:         [][]byte{[]byte("d1")},
			IncludeEvidence: true,
		})
		require.NoError(t, err)
		require.NotNil(t, signed.Evidence)
		require.NotEmpty(t, signed.Evidence.OCSPResponses)
	})
}

func TestSignContent(t *testing.T) {
	ctx := context.Background()

	t.Run("signs exactly one document", func(t *testing.T) {
		fake := &backend.FakeClient{}
		s := New(fake)

		signed, err := s.SignContent(ctx, &ContentRequest{
			Worker:    "xades-worker",
			KeyAlias:  "key-1",
			Documents: [][]byte{[]byte("the document")},
			Packaging: "ENVELOPING",
		})
		require.NoError(t, err)
		require.Len(t, signed.Signatures, 1)
		require.Equal(t, []string{"SignContent(xades-worker,key-1)"}, fake.Calls)
	})

	t.Run("multiple documents are unsupported", func(t *testing.T) {
		s := New(&backend.FakeClient{})

		_, err := s.SignContent(ctx, &ContentRequest{
			Worker:    "w",
			KeyAlias:  "k",
			Documents: [][]byte{[]byte("a"), []byte("b")},
		})
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})
}
