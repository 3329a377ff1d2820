// Package token unifies how a signing key was obtained with how much it is
// allowed to sign now. The three strategies (one-time, long-term and
// session) share one closed interface dispatched once at acquisition time,
// keeping the capacity and cleanup contracts exhaustively checkable.
package token

import "context"

// SigningToken is a leased or resolved signing key plus its signing
// allowance for the current request.
type SigningToken interface {
	// KeyAlias locates the key material on the backend.
	KeyAlias() string

	// KeyHolderID identifies the key holder the alias lives on.
	KeyHolderID() int64

	// CanSignData reports whether the token may sign docCount documents
	// given the grant's authorized signature count.
	CanSignData(docCount, sadCount int) bool

	// Cleanup releases whatever the token holds. It runs on every exit path
	// of a signing request, success or failure, and must be idempotent-safe
	// to call exactly once per token.
	Cleanup(ctx context.Context) error
}
