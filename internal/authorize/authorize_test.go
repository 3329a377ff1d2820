package authorize

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
)

const sha256OID = "2.16.840.1.101.3.4.2.1"

func TestHashAuthorizer(t *testing.T) {
	auth := HashAuthorizer{}

	t.Run("authorizes covered hashes", func(t *testing.T) {
		grant := &models.AuthorizationGrant{
			NumSignatures: 2,
			Hashes:        []string{"abc", "def"},
		}

		ok, err := auth.Authorize([]string{"abc", "def"}, grant)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = auth.Authorize([]string{"abc"}, grant)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("refuses an uncovered hash", func(t *testing.T) {
		grant := &models.AuthorizationGrant{
			NumSignatures: 2,
			Hashes:        []string{"abc", "def"},
		}

		ok, err := auth.Authorize([]string{"abc", "ghi"}, grant)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("refuses when count exceeds authorized signatures", func(t *testing.T) {
		grant := &models.AuthorizationGrant{
			NumSignatures: 1,
			Hashes:        []string{"abc", "def"},
		}

		ok, err := auth.Authorize([]string{"abc", "def"}, grant)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("grant without hash set fails closed", func(t *testing.T) {
		grant := &models.AuthorizationGrant{NumSignatures: 10}

		ok, err := auth.Authorize([]string{"abc"}, grant)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("nil grant is an error, not a refusal", func(t *testing.T) {
		_, err := auth.Authorize([]string{"abc"}, nil)
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})
}

func TestDocumentAuthorizer(t *testing.T) {
	auth := DocumentAuthorizer{}

	doc := []byte("the document body")
	sum := sha256.Sum256(doc)
	docHash := base64.StdEncoding.EncodeToString(sum[:])

	t.Run("authorizes document whose digest is covered", func(t *testing.T) {
		grant := &models.AuthorizationGrant{
			NumSignatures:    1,
			Hashes:           []string{docHash},
			HashAlgorithmOID: sha256OID,
		}

		ok, err := auth.Authorize([][]byte{doc}, grant)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("refuses a tampered document", func(t *testing.T) {
		grant := &models.AuthorizationGrant{
			NumSignatures:    1,
			Hashes:           []string{docHash},
			HashAlgorithmOID: sha256OID,
		}

		ok, err := auth.Authorize([][]byte{[]byte("another body")}, grant)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unknown digest algorithm is an error, not a refusal", func(t *testing.T) {
		grant := &models.AuthorizationGrant{
			NumSignatures:    1,
			Hashes:           []string{docHash},
			HashAlgorithmOID: "1.2.3.4",
		}

		_, err := auth.Authorize([][]byte{doc}, grant)
		require.Error(t, err)
		require.Equal(t, sigerr.CategoryConfiguration, sigerr.CategoryOf(err))
	})

	t.Run("accepts algorithm names as well as OIDs", func(t *testing.T) {
		grant := &models.AuthorizationGrant{
			NumSignatures:    1,
			Hashes:           []string{docHash},
			HashAlgorithmOID: "SHA-256",
		}

		ok, err := auth.Authorize([][]byte{doc}, grant)
		require.NoError(t, err)
		require.True(t, ok)
	})
}
