package auth

import (
	"context"
)

var scopeCtxKey = &contextKey{"scope"}
var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithScope sets the request Scope in the given context
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeCtxKey, scope)
}

// ScopeFromContext finds the request Scope from the context.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	raw, ok := ctx.Value(scopeCtxKey).(*Scope)
	return raw, ok && raw != nil
}

// WithIdentity sets the resolved session identity in the given context
func WithIdentity(ctx context.Context, identity SessionData) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext extracts the identity set by WithIdentity
func IdentityFromContext(ctx context.Context) (SessionData, bool) {
	raw, ok := ctx.Value(identityCtxKey).(SessionData)
	return raw, ok && raw != nil
}

// Can checks the identity in ctx against acl. No identity denies.
func Can(ctx context.Context, acl *ACL, action, resource string) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok || acl == nil {
		return false
	}
	role, ok := identity.Role()
	if !ok {
		return false
	}
	return acl.MustCan(role, action, resource)
}
