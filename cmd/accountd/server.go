package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	auth "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/activitymap"
	"github.com/goliatone/go-account/fiberauth"
	"github.com/goliatone/go-account/redisstore"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg Config, logger auth.Logger) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := sessionStore(ctx, cfg)
	if err != nil {
		return err
	}

	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithActivitySink(logSink(logger)),
	}
	if cfg.LoginRate > 0 {
		opts = append(opts, auth.WithLoginRateLimit(cfg.LoginRate, cfg.LoginBurst))
	}
	manager := auth.NewAccountManager(auth.NewUsersRepository(db), logMailer(logger), cfg.Account, opts...)

	acl, err := adminACL(cfg.Account.GetStrictACL())
	if err != nil {
		return err
	}

	app := newApp(manager, store, acl, cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.HTTPAddr)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func newApp(manager *auth.AccountManager, store *session.Store, acl *auth.ACL, cfg Config, logger auth.Logger) *fiber.App {
	cookieOpts := []auth.CookieOption{
		auth.WithSecureCookies(cfg.CookieSecure),
		auth.WithHTTPOnlyCookies(true),
		auth.WithSameSite("Lax"),
	}

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New(fiber.Config{
			ErrorHandler:          fiberauth.NewErrorHandler(logger),
			DisableStartupMessage: true,
		})
		app.Use(fiberauth.New(fiberauth.Config{
			Manager:       manager,
			Store:         store,
			CookieOptions: cookieOpts,
			Logger:        logger,
		}))
		return app
	})

	api := srv.Router().Group("/api")
	fiberauth.RegisterRoutes(api, fiberauth.NewController(manager,
		fiberauth.WithBaseURL(cfg.BaseURL+"/api"),
		fiberauth.WithControllerLogger(logger),
	))

	admin := api.Group("/admin")
	admin.Post("/users/:id/ban", func(ctx router.Context) error {
		if err := manager.Ban(ctx.Context(), actorFrom(ctx), ctx.Param("id"), auth.WithTransitionReason("admin ban")); err != nil {
			return err
		}
		return ctx.NoContent(fiber.StatusNoContent)
	}, fiberauth.RequireLogin(), fiberauth.RequirePermission(acl, "ban", "users"))

	admin.Post("/users/:id/unban", func(ctx router.Context) error {
		if err := manager.Unban(ctx.Context(), actorFrom(ctx), ctx.Param("id")); err != nil {
			return err
		}
		return ctx.NoContent(fiber.StatusNoContent)
	}, fiberauth.RequireLogin(), fiberauth.RequirePermission(acl, "ban", "users"))

	admin.Post("/users/:id/role", func(ctx router.Context) error {
		var body struct {
			Role string `json:"role"`
		}
		if err := ctx.Bind(&body); err != nil {
			return fiber.ErrBadRequest
		}
		role, ok := auth.ParseRole(body.Role)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "unknown role")
		}
		if err := manager.UpdateRole(ctx.Context(), actorFrom(ctx), ctx.Param("id"), role); err != nil {
			return err
		}
		return ctx.NoContent(fiber.StatusNoContent)
	}, fiberauth.RequireLogin(), fiberauth.RequirePermission(acl, "set_role", "users"))

	return app
}

func sessionStore(ctx context.Context, cfg Config) (*session.Store, error) {
	sessCfg := session.Config{
		Expiration:     24 * time.Hour,
		CookieHTTPOnly: true,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: "Lax",
	}
	if cfg.RedisURL != "" {
		client, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		sessCfg.Storage = redisstore.New(client)
	}
	return session.New(sessCfg), nil
}

// adminACL lets admins and owners manage accounts; only owners change roles
func adminACL(strict bool) (*auth.ACL, error) {
	users, err := auth.NewResourceActions("ban", "set_role")
	if err != nil {
		return nil, err
	}
	owner, err := auth.MakePermissions([]string{auth.WildcardAction}, users)
	if err != nil {
		return nil, err
	}

	return auth.NewACL(auth.WithStrictACL(strict)).SetRules(
		auth.Resources{"users": users},
		auth.RolePermissions{
			auth.RoleAdmin: {"users": users["ban"]},
			auth.RoleOwner: {"users": owner},
		},
	), nil
}

func actorFrom(ctx router.Context) auth.ActorRef {
	identity, _ := fiberauth.IdentityFrom(ctx)
	return auth.ActorRef{ID: identity.UserID(), Type: "user"}
}

func logMailer(logger auth.Logger) auth.Mailer {
	return auth.MailerFunc(func(_ context.Context, m auth.MailSettings) error {
		logger.Info("mail to %s <%s>: %s\n%s", m.ToName, m.ToAddress, m.Subject, m.Body)
		return nil
	})
}

func logSink(logger auth.Logger) auth.ActivitySink {
	return activitymap.Sink(func(n activitymap.Normalized) error {
		logger.Info("activity %s", print.MaybePrettyJSON(n))
		return nil
	})
}
