// Package auth resolves the acting user and workspace of an HTTP request.
package auth

import (
	"context"
	"errors"
)

var (
	ErrAuthDisabled     = errors.New("auth disabled")
	ErrInvalidToken     = errors.New("invalid token")
	ErrMissingIdentity  = errors.New("missing credentials")
	ErrMissingWorkspace = errors.New("token has no workspace")
)

// Identity is the authenticated actor of a request.
type Identity struct {
	UserID      string
	WorkspaceID string
}

type identityContextKey struct{}

// WithIdentity attaches an identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
