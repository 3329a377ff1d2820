// Package sad verifies signature activation data tokens and maps their
// claims onto authorization grants.
package sad

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/trustedge/signhub/internal/models"
	"github.com/trustedge/signhub/internal/sigerr"
)

// Claim names carried by activation tokens. The subject is the authorizing
// user.
const (
	claimCredentialID       = "credentialID"
	claimNumSignatures      = "numSignatures"
	claimHashes             = "hashes"
	claimHashAlgorithmOID   = "hashAlgorithmOID"
	claimSignatureQualifier = "signatureQualifier"
	claimClientData         = "clientData"
)

// registeredClaims are consumed by token validation and never surface in the
// grant's attribute map.
var registeredClaims = map[string]bool{
	"iss": true, "aud": true, "exp": true, "nbf": true, "iat": true, "jti": true,
}

// Verifier checks activation token signatures and expiry before any claim is
// trusted.
type Verifier struct {
	keyfunc jwt.Keyfunc
	methods []string
}

// NewVerifier creates a verifier for tokens signed with the given key. The
// methods list pins the accepted signing algorithms, e.g. "RS256".
func NewVerifier(key any, methods ...string) *Verifier {
	return &Verifier{
		keyfunc: func(*jwt.Token) (any, error) { return key, nil },
		methods: methods,
	}
}

// Verify validates the raw token and maps its claims to a grant. An invalid
// signature or an expired token never produces a grant.
func (v *Verifier) Verify(raw string) (*models.AuthorizationGrant, error) {
	token, err := jwt.Parse(raw, v.keyfunc,
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, sigerr.Wrap(sigerr.CategoryUnauthorized,
			fmt.Errorf("failed to verify activation token: %w", err))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, sigerr.New(sigerr.CategoryUnauthorized, "activation token carries no claims")
	}

	return MapClaims(claims)
}

// MapClaims converts verified token claims into an authorization grant.
// Claims outside the known set are preserved verbatim so downstream policy
// can inspect them.
func MapClaims(claims jwt.MapClaims) (*models.AuthorizationGrant, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, sigerr.New(sigerr.CategoryUnauthorized, "activation token has no subject")
	}

	grant := &models.AuthorizationGrant{
		UserID:             sub,
		CredentialID:       stringClaim(claims, claimCredentialID),
		SignatureQualifier: stringClaim(claims, claimSignatureQualifier),
		HashAlgorithmOID:   stringClaim(claims, claimHashAlgorithmOID),
		ClientData:         stringClaim(claims, claimClientData),
	}

	grant.NumSignatures, err = intClaim(claims, claimNumSignatures)
	if err != nil {
		return nil, err
	}

	if raw, ok := claims[claimHashes]; ok {
		grant.Hashes, err = stringSliceClaim(claimHashes, raw)
		if err != nil {
			return nil, err
		}
	}

	for name, value := range claims {
		switch {
		case registeredClaims[name], name == "sub":
		case name == claimCredentialID, name == claimNumSignatures, name == claimHashes:
		case name == claimHashAlgorithmOID, name == claimSignatureQualifier, name == claimClientData:
		default:
			if grant.OtherAttributes == nil {
				grant.OtherAttributes = make(map[string]any)
			}
			grant.OtherAttributes[name] = value
		}
	}

	return grant, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

func intClaim(claims jwt.MapClaims, name string) (int, error) {
	raw, ok := claims[name]
	if !ok {
		return 0, sigerr.Newf(sigerr.CategoryUnauthorized, "activation token is missing claim %q", name)
	}
	// JSON numbers decode as float64.
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		return 0, sigerr.Newf(sigerr.CategoryUnauthorized, "claim %q is not an integer", name)
	}
	return int(f), nil
}

func stringSliceClaim(name string, raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, sigerr.Newf(sigerr.CategoryUnauthorized, "claim %q is not a list", name)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, sigerr.Newf(sigerr.CategoryUnauthorized, "claim %q contains a non-string entry", name)
		}
		out = append(out, s)
	}
	return out, nil
}
