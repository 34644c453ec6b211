package fiberauth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	auth "github.com/goliatone/go-account"
	"github.com/goliatone/go-router"
)

const (
	// ScopeKey holds the *auth.Scope in fiber locals
	ScopeKey = "account_scope"
	// IdentityKey holds the resolved auth.SessionData in fiber locals
	IdentityKey = "account_identity"
)

// Config configures the scope middleware
type Config struct {
	Manager       *auth.AccountManager
	Store         *session.Store
	CookieOptions []auth.CookieOption
	Logger        auth.Logger
	// Next skips the middleware when it returns true
	Next func(c *fiber.Ctx) bool
}

// New builds the per request auth.Scope, resolves the identity and flushes
// cookies and session after the handler chain returns.
func New(cfg Config) fiber.Handler {
	if cfg.Store == nil {
		cfg.Store = session.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.NopLogger()
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		sess, err := cfg.Store.Get(c)
		if err != nil {
			cfg.Logger.Error("failed to load session: %v", err)
			return fiber.ErrInternalServerError
		}

		scope := auth.NewScope(NewSession(sess), auth.NewCookieManager(NewCookieStorage(c), cfg.CookieOptions...))
		c.Locals(ScopeKey, scope)

		ctx := auth.WithScope(c.UserContext(), scope)
		identity, ok, err := cfg.Manager.GetIdentity(ctx, scope)
		if err != nil {
			cfg.Logger.Warn("failed to resolve identity: %v", err)
		} else if ok {
			ctx = auth.WithIdentity(ctx, identity)
			c.Locals(IdentityKey, identity)
		}
		c.SetUserContext(ctx)

		nextErr := c.Next()

		if err := cfg.Manager.PostProcess(ctx, scope); err != nil {
			cfg.Logger.Error("failed to commit auth state: %v", err)
			if nextErr == nil {
				return err
			}
		}
		return nextErr
	}
}

// Locals is the part of *fiber.Ctx and router.Context the lookups need
type Locals interface {
	Locals(key any, value ...any) any
}

// ScopeFrom returns the scope installed by New
func ScopeFrom(c Locals) (*auth.Scope, bool) {
	scope, ok := c.Locals(ScopeKey).(*auth.Scope)
	return scope, ok && scope != nil
}

// IdentityFrom returns the identity resolved by New or set by a login
func IdentityFrom(c Locals) (auth.SessionData, bool) {
	identity, ok := c.Locals(IdentityKey).(auth.SessionData)
	return identity, ok && identity != nil
}

func setIdentity(ctx router.Context, identity auth.SessionData) {
	ctx.Locals(IdentityKey, identity)
	ctx.SetContext(auth.WithIdentity(ctx.Context(), identity))
}

func clearIdentity(ctx router.Context) {
	ctx.Locals(IdentityKey, nil)
	ctx.SetContext(auth.WithIdentity(ctx.Context(), nil))
}

// RequireLogin rejects requests without an identity with 401
func RequireLogin() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := IdentityFrom(ctx); !ok {
				return fiber.ErrUnauthorized
			}
			return next(ctx)
		}
	}
}

// RequirePermission checks the identity role against acl. No identity is a
// 401, a deny is a 403.
func RequirePermission(acl *auth.ACL, action, resource string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			identity, ok := IdentityFrom(ctx)
			if !ok {
				return fiber.ErrUnauthorized
			}

			role, ok := identity.Role()
			if !ok {
				return fiber.ErrForbidden
			}

			allowed, err := acl.Can(role, action, resource)
			if err != nil {
				return err
			}
			if !allowed {
				return fiber.ErrForbidden
			}
			return next(ctx)
		}
	}
}
