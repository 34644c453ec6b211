package fiberauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	auth "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/fiberauth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu    sync.Mutex
	mails []auth.MailSettings
}

func (o *outbox) SendMail(_ context.Context, settings auth.MailSettings) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mails = append(o.mails, settings)
	return nil
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Debug(string, ...any) {}

type testServer struct {
	app     *fiber.App
	logger  *recordingLogger
	users   *auth.MemoryUsers
	crypto  *auth.Crypto
	outbox  *outbox
	manager *auth.AccountManager
}

func newTestServer(t *testing.T, managerOpts ...auth.Option) *testServer {
	t.Helper()

	opts := auth.DefaultOptions()
	opts.MailFromAddress = "noreply@example.com"
	opts.RoleCookie = "role"
	opts.RememberMeCookie = "remember"

	s := &testServer{
		users:  auth.NewMemoryUsers(),
		crypto: auth.NewCrypto(auth.WithPasswordCost(bcrypt.MinCost)),
		outbox: &outbox{},
		logger: &recordingLogger{},
	}
	s.manager = auth.NewAccountManager(s.users, s.outbox, opts,
		append([]auth.Option{auth.WithCrypto(s.crypto)}, managerOpts...)...)

	reports, err := auth.NewResourceActions("read")
	require.NoError(t, err)
	acl := auth.NewACL().SetRules(
		auth.Resources{"reports": reports},
		auth.RolePermissions{auth.RoleAdmin: {"reports": reports["read"]}},
	)

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		s.app = fiber.New(fiber.Config{ErrorHandler: fiberauth.NewErrorHandler(s.logger)})
		s.app.Use(fiberauth.New(fiberauth.Config{
			Manager: s.manager,
			Store:   session.New(),
		}))
		return s.app
	})

	r := srv.Router()
	fiberauth.RegisterRoutes(r, fiberauth.NewController(s.manager, fiberauth.WithBaseURL("https://accounts.test/")))

	r.Get("/reports", func(ctx router.Context) error {
		return ctx.SendString("reports")
	}, fiberauth.RequirePermission(acl, "read", "reports"))
	r.Get("/private", func(ctx router.Context) error {
		identity, ok := auth.IdentityFromContext(ctx.Context())
		if !ok {
			return fiber.ErrInternalServerError
		}
		return ctx.SendString(identity.Username())
	}, fiberauth.RequireLogin())
	return s
}

func (s *testServer) createUser(t *testing.T, username, password string, role auth.Role) {
	t.Helper()
	hash, err := s.crypto.HashPassword(password)
	require.NoError(t, err)
	_, err = s.users.CreateUser(context.Background(), &auth.User{
		ID:            username + "-id",
		Username:      username,
		Email:         username + "@example.com",
		PasswordHash:  hash,
		Role:          role,
		AccountStatus: auth.AccountActivated,
	})
	require.NoError(t, err)
}

type jar map[string]string

func (j jar) absorb(resp *http.Response) {
	for _, ck := range resp.Cookies() {
		if ck.Value == "" || ck.Value == auth.ClearedCookieValue {
			delete(j, ck.Name)
			continue
		}
		j[ck.Name] = ck.Value
	}
}

func (j jar) header() string {
	parts := make([]string, 0, len(j))
	for k, v := range j {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "; ")
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies jar) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if len(cookies) > 0 {
		req.Header.Set(fiber.HeaderCookie, cookies.header())
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	if cookies != nil {
		cookies.absorb(resp)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func rawSetCookies(resp *http.Response) []string {
	return resp.Header.Values(fiber.HeaderSetCookie)
}

func TestRegisterActivateLoginFlow(t *testing.T) {
	s := newTestServer(t)
	cookies := jar{}

	resp := s.do(t, http.MethodPost, "/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "correct horse",
	}, cookies)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[map[string]string](t, resp)
	require.NotEmpty(t, created["id"])

	require.Len(t, s.outbox.mails, 1)
	mail := s.outbox.mails[0]
	assert.Equal(t, "alice@example.com", mail.ToAddress)
	assert.Equal(t, "Activate your account", mail.Subject)

	user, err := s.users.GetUserByColumn(context.Background(), auth.ColumnID, created["id"])
	require.NoError(t, err)
	require.NotNil(t, user.ActivationKey)
	assert.Contains(t, mail.Body, "https://accounts.test/activate?key="+*user.ActivationKey)

	resp = s.do(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "correct horse"}, cookies)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[fiberauth.ErrorResponse](t, resp)
	assert.Equal(t, auth.TextCodeUnexpectedAccountStatus, body.Error)

	resp = s.do(t, http.MethodPost, "/activate", map[string]string{"key": *user.ActivationKey}, cookies)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "correct horse"}, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	identity := decode[map[string]any](t, resp)
	assert.Equal(t, "alice", identity["username"])

	assert.Equal(t, "2", cookies["role"])
	assert.NotEmpty(t, cookies["remember"])
	assert.NotEmpty(t, cookies["session_id"])

	resp = s.do(t, http.MethodGet, "/me", nil, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]any](t, resp)
	assert.Equal(t, created["id"], me["id"])

	resp = s.do(t, http.MethodGet, "/private", nil, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginSetsCookieAttributes(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "bob", "hunter2hunter2", auth.RoleMember)

	resp := s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "hunter2hunter2"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var roleCookie, rememberCookie string
	for _, raw := range rawSetCookies(resp) {
		switch {
		case strings.HasPrefix(raw, "role="):
			roleCookie = raw
		case strings.HasPrefix(raw, "remember="):
			rememberCookie = raw
		}
	}
	require.NotEmpty(t, roleCookie)
	require.NotEmpty(t, rememberCookie)
	assert.NotContains(t, strings.ToLower(roleCookie), "expires=")
	assert.Contains(t, strings.ToLower(rememberCookie), "expires=")
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "bob", "hunter2hunter2", auth.RoleMember)

	unknown := s.do(t, http.MethodPost, "/login", map[string]string{"username": "nobody", "password": "whatever"}, nil)
	wrong := s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "nope"}, nil)

	assert.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)

	a := decode[fiberauth.ErrorResponse](t, unknown)
	b := decode[fiberauth.ErrorResponse](t, wrong)
	assert.Equal(t, auth.TextCodeCredentialInvalid, a.Error)
	assert.Equal(t, a, b)
}

func TestLoginRateLimited(t *testing.T) {
	s := newTestServer(t, auth.WithLoginRateLimit(time.Hour, 2))
	s.createUser(t, "bob", "hunter2hunter2", auth.RoleMember)

	for i := 0; i < 2; i++ {
		resp := s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "hunter2hunter2"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decode[fiberauth.ErrorResponse](t, resp)
	assert.Equal(t, auth.TextCodeTooManyLoginAttempts, body.Error)
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/register", map[string]string{
		"username": "al",
		"email":    "not-an-email",
		"password": "short",
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decode[fiberauth.ErrorResponse](t, resp)
	assert.Equal(t, "VALIDATION_FAILED", body.Error)
	assert.Contains(t, body.Details, "username")
	assert.Contains(t, body.Details, "email")
	assert.Contains(t, body.Details, "password")
	assert.Equal(t, 0, s.users.Len())
	assert.Empty(t, s.outbox.mails)
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRememberMeRevivesSession(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "bob", "hunter2hunter2", auth.RoleMember)

	cookies := jar{}
	resp := s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "hunter2hunter2"}, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// new browser session, persistent cookie only
	revived := jar{"remember": cookies["remember"]}
	resp = s.do(t, http.MethodGet, "/me", nil, revived)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]any](t, resp)
	assert.Equal(t, "bob", me["username"])
	assert.Equal(t, "2", revived["role"])
	assert.NotEmpty(t, revived["session_id"])

	// the re-seeded session works without the persistent cookie
	sessionOnly := jar{"session_id": revived["session_id"]}
	resp = s.do(t, http.MethodGet, "/me", nil, sessionOnly)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutClearsState(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "bob", "hunter2hunter2", auth.RoleMember)

	cookies := jar{}
	resp := s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "hunter2hunter2"}, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	remember := cookies["remember"]

	resp = s.do(t, http.MethodPost, "/logout", nil, cookies)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cleared := 0
	for _, raw := range rawSetCookies(resp) {
		if strings.HasPrefix(raw, "role="+auth.ClearedCookieValue) || strings.HasPrefix(raw, "remember="+auth.ClearedCookieValue) {
			cleared++
		}
	}
	assert.Equal(t, 2, cleared)
	assert.NotContains(t, cookies, "role")
	assert.NotContains(t, cookies, "remember")

	resp = s.do(t, http.MethodGet, "/me", nil, cookies)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// the old persistent cookie no longer matches a stored login
	resp = s.do(t, http.MethodGet, "/me", nil, jar{"remember": remember})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "bob", "hunter2hunter2", auth.RoleMember)

	resp := s.do(t, http.MethodPost, "/password-reset", map[string]string{"identifier": "bob@example.com"}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, s.outbox.mails, 1)

	user, err := s.users.GetUserByColumn(context.Background(), auth.ColumnUsername, "bob")
	require.NoError(t, err)
	require.NotNil(t, user.ResetKey)
	assert.Contains(t, s.outbox.mails[0].Body, "/password-reset/"+*user.ResetKey)

	resp = s.do(t, http.MethodPost, "/password-reset/"+*user.ResetKey, map[string]string{
		"email":    "someone@example.com",
		"password": "a new password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/password-reset/"+*user.ResetKey, map[string]string{
		"email":    "bob@example.com",
		"password": "a new password",
	}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "a new password"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPasswordResetUnknownIdentifierIsAccepted(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/password-reset", map[string]string{"identifier": "ghost"}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, s.outbox.mails)
}

func TestRequirePermission(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "member", "member-password", auth.RoleMember)
	s.createUser(t, "admin", "admin-password", auth.RoleAdmin)

	resp := s.do(t, http.MethodGet, "/reports", nil, jar{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	member := jar{}
	resp = s.do(t, http.MethodPost, "/login", map[string]string{"username": "member", "password": "member-password"}, member)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/reports", nil, member)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin := jar{}
	resp = s.do(t, http.MethodPost, "/login", map[string]string{"username": "admin", "password": "admin-password"}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/reports", nil, admin)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: fiberauth.ErrorHandler})
	app.Get("/conflict", func(c *fiber.Ctx) error { return auth.ErrUserAlreadyExists })
	app.Get("/db", func(c *fiber.Ctx) error { return auth.ErrFailedDBOp })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.ErrNotFound })
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("secret detail") })

	tests := []struct {
		path    string
		status  int
		code    string
		message string
	}{
		{"/conflict", http.StatusConflict, auth.TextCodeUserAlreadyExists, "user already exists"},
		{"/db", http.StatusInternalServerError, auth.TextCodeFailedDBOp, "internal error"},
		{"/fiber", http.StatusNotFound, "HTTP_ERROR", "Not Found"},
		{"/plain", http.StatusInternalServerError, "INTERNAL", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decode[fiberauth.ErrorResponse](t, resp)
			assert.Equal(t, tt.code, body.Error)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestLoginRotatesSessionID(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "bob", "hunter2hunter2", auth.RoleMember)

	cookies := jar{"session_id": "planted-session-id"}
	resp := s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "hunter2hunter2"}, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotEmpty(t, cookies["session_id"])
	assert.NotEqual(t, "planted-session-id", cookies["session_id"])

	resp = s.do(t, http.MethodGet, "/me", nil, jar{"session_id": "planted-session-id"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBannedUserLosesLiveSession(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "bob", "hunter2hunter2", auth.RoleMember)

	cookies := jar{}
	resp := s.do(t, http.MethodPost, "/login", map[string]string{"username": "bob", "password": "hunter2hunter2"}, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionOnly := jar{"session_id": cookies["session_id"]}

	require.NoError(t, s.manager.Ban(context.Background(), auth.ActorRef{ID: "admin"}, "bob-id"))

	resp = s.do(t, http.MethodGet, "/me", nil, sessionOnly)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/me", nil, jar{"remember": cookies["remember"]})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDemotedUserLosesPermission(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "admin", "admin-password", auth.RoleAdmin)

	cookies := jar{}
	resp := s.do(t, http.MethodPost, "/login", map[string]string{"username": "admin", "password": "admin-password"}, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/reports", nil, cookies)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.manager.UpdateRole(context.Background(), auth.ActorRef{ID: "owner"}, "admin-id", auth.RoleGuest))

	resp = s.do(t, http.MethodGet, "/reports", nil, jar{"session_id": cookies["session_id"]})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/reports", nil, jar{"remember": cookies["remember"]})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNewErrorHandlerLogsServerErrors(t *testing.T) {
	logger := &recordingLogger{}
	app := fiber.New(fiber.Config{ErrorHandler: fiberauth.NewErrorHandler(logger)})
	app.Get("/db", func(c *fiber.Ctx) error {
		return goerrors.New("write failed", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithMetadata(map[string]any{"table": "users"})
	})
	app.Get("/conflict", func(c *fiber.Ctx) error { return auth.ErrUserAlreadyExists })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/conflict", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, logger.errors)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/db", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode[fiberauth.ErrorResponse](t, resp)
	assert.Equal(t, "internal error", body.Message)

	require.Len(t, logger.errors, 1)
	assert.Contains(t, logger.errors[0], "GET /db failed")
	assert.Contains(t, logger.errors[0], "users")
}
