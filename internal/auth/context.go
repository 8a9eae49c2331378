// ABOUTME: Principal context for tracking the authenticated caller through tool handlers
// ABOUTME: Provides WithPrincipal/PrincipalFromContext for propagating identity via context

package auth

import (
	"context"
)

// Principal is the identity resolved from a bearer credential.
type Principal struct {
	ID         string         // user ID the credential belongs to
	Credential CredentialKind // which token scheme authenticated the caller
}

// principalContextKey is the key type for storing Principal in context.Context.
type principalContextKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the Principal from the context, returning nil if not present.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok {
		return nil
	}
	return p
}
