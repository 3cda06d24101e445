package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// DefaultContextKey is the fiber locals key holding the bound identity
const DefaultContextKey = "user"

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithIdentity sets the AuthenticatedIdentity in the given context
func WithIdentity(ctx context.Context, identity *AuthenticatedIdentity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity bound to the context
func IdentityFromContext(ctx context.Context) (*AuthenticatedIdentity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*AuthenticatedIdentity)
	return raw, ok && raw != nil
}

// IdentityFromFiber extracts the identity stored by the request authenticator
func IdentityFromFiber(c *fiber.Ctx, key string) (*AuthenticatedIdentity, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw, ok := c.Locals(key).(*AuthenticatedIdentity)
	if ok && raw != nil {
		return raw, true
	}
	return IdentityFromContext(c.UserContext())
}
