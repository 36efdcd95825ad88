package authz

import (
	"context"

	"github.com/tagstone/tagstone/internal/identity"
)

// Principal is the authenticated caller attached to a request context.
// Permissions is populated only after WithPermissions has run.
type Principal struct {
	Session     *identity.Session
	User        *identity.User
	Permissions []identity.Permission
}

type contextKey struct{ name string }

var principalKey = contextKey{"authz.principal"}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the principal set by the authentication
// middleware. The second return is false on unauthenticated contexts.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}
