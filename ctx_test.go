package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeContext(t *testing.T) {
	_, ok := auth.ScopeFromContext(context.Background())
	assert.False(t, ok)

	scope := auth.NewScope(nil, nil)
	got, ok := auth.ScopeFromContext(auth.WithScope(context.Background(), scope))
	assert.True(t, ok)
	assert.Same(t, scope, got)

	_, ok = auth.ScopeFromContext(auth.WithScope(context.Background(), nil))
	assert.False(t, ok)
}

func TestIdentityContext(t *testing.T) {
	_, ok := auth.IdentityFromContext(context.Background())
	assert.False(t, ok)

	identity := auth.SessionData{"id": "u1"}
	got, ok := auth.IdentityFromContext(auth.WithIdentity(context.Background(), identity))
	assert.True(t, ok)
	assert.Equal(t, "u1", got.UserID())

	_, ok = auth.IdentityFromContext(auth.WithIdentity(context.Background(), nil))
	assert.False(t, ok)
}

func TestCan(t *testing.T) {
	resources, permissions := articleRules(t)
	acl := auth.NewACL().SetRules(resources, permissions)

	ctxFor := func(role any) context.Context {
		return auth.WithIdentity(context.Background(), auth.SessionData{"id": "u1", "role": role})
	}

	t.Run("no identity", func(t *testing.T) {
		assert.False(t, auth.Can(context.Background(), acl, "read", "articles"))
	})

	t.Run("nil acl", func(t *testing.T) {
		assert.False(t, auth.Can(ctxFor(int(auth.RoleOwner)), nil, "read", "articles"))
	})

	t.Run("member creates", func(t *testing.T) {
		assert.True(t, auth.Can(ctxFor(int(auth.RoleMember)), acl, "create", "articles"))
	})

	t.Run("guest can not create", func(t *testing.T) {
		assert.False(t, auth.Can(ctxFor(int(auth.RoleGuest)), acl, "create", "articles"))
	})

	t.Run("role decoded from json", func(t *testing.T) {
		identity, err := auth.DecodeSessionData(`{"id":"u1","role":8}`)
		require.NoError(t, err)
		ctx := auth.WithIdentity(context.Background(), identity)
		assert.True(t, auth.Can(ctx, acl, "delete", "articles"))
	})

	t.Run("unreadable role", func(t *testing.T) {
		assert.False(t, auth.Can(ctxFor("owner"), acl, "read", "articles"))
	})
}
