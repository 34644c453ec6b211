package fiberauth

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-account"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Routes are the controller paths, relative to the router they mount on
type Routes struct {
	Register      string
	Activate      string
	Login         string
	Logout        string
	PasswordReset string
	Me            string
}

// Controller exposes the account flows as JSON endpoints
type Controller struct {
	Manager        *auth.AccountManager
	Routes         Routes
	BaseURL        string
	DefaultRole    auth.Role
	ActivationMail auth.MailFormatter
	ResetMail      auth.MailFormatter
	SessionData    auth.SessionDataFunc
	Logger         auth.Logger
}

// ControllerOption customizes a Controller
type ControllerOption func(*Controller)

// WithBaseURL sets the public URL used in default mail bodies
func WithBaseURL(url string) ControllerOption {
	return func(c *Controller) {
		c.BaseURL = strings.TrimRight(url, "/")
	}
}

// WithMailFormatters overrides the activation and reset mail bodies
func WithMailFormatters(activation, reset auth.MailFormatter) ControllerOption {
	return func(c *Controller) {
		if activation != nil {
			c.ActivationMail = activation
		}
		if reset != nil {
			c.ResetMail = reset
		}
	}
}

// WithControllerLogger sets the logger
func WithControllerLogger(logger auth.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// NewController returns a Controller with default routes and mail bodies
func NewController(manager *auth.AccountManager, opts ...ControllerOption) *Controller {
	c := &Controller{
		Manager:     manager,
		DefaultRole: auth.RoleMember,
		Logger:      auth.NopLogger(),
		Routes: Routes{
			Register:      "/register",
			Activate:      "/activate",
			Login:         "/login",
			Logout:        "/logout",
			PasswordReset: "/password-reset",
			Me:            "/me",
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.ActivationMail == nil {
		c.ActivationMail = c.defaultActivationMail
	}
	if c.ResetMail == nil {
		c.ResetMail = c.defaultResetMail
	}
	return c
}

// RegisterRoutes mounts the controller endpoints on app
func RegisterRoutes[T any](app router.Router[T], ctrl *Controller) {
	app.Post(ctrl.Routes.Register, ctrl.RegisterPost)
	app.Post(ctrl.Routes.Activate, ctrl.ActivatePost)
	app.Post(ctrl.Routes.Login, ctrl.LoginPost)
	app.Post(ctrl.Routes.Logout, ctrl.LogoutPost)
	app.Post(ctrl.Routes.PasswordReset, ctrl.PasswordResetPost)
	app.Post(ctrl.Routes.PasswordReset+"/:key", ctrl.PasswordResetExecute)
	app.Get(ctrl.Routes.Me, ctrl.MeGet, RequireLogin())
}

// RegistrationPayload is the registration body
type RegistrationPayload struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

// KeyPayload carries an activation key
type KeyPayload struct {
	Key string `json:"key" form:"key"`
}

// Validate will validate the payload
func (r KeyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required, validation.Length(1, 128)),
	)
}

// LoginPayload is the login body
type LoginPayload struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 254)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
	)
}

// PasswordResetRequestPayload starts a password reset
type PasswordResetRequestPayload struct {
	Identifier string `json:"identifier" form:"identifier"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 254)),
	)
}

// PasswordResetExecutePayload finishes a password reset
type PasswordResetExecutePayload struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// Validate will validate the payload
func (r PasswordResetExecutePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
	)
}

type validatable interface {
	Validate() error
}

// ValidationError reports payload fields that failed validation
type ValidationError struct {
	Fields map[string]any
}

func (e *ValidationError) Error() string {
	return "invalid payload"
}

func (ctrl *Controller) bind(ctx router.Context, payload validatable) error {
	if err := ctx.Bind(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse body")
	}
	if err := payload.Validate(); err != nil {
		fields := validationDetails(err)
		ctrl.Logger.Debug("rejected %s payload: %s", ctx.Path(), print.MaybePrettyJSON(fields))
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validationDetails(err error) map[string]any {
	out := map[string]any{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}
	out["body"] = err.Error()
	return out
}

func (ctrl *Controller) RegisterPost(ctx router.Context) error {
	payload := new(RegistrationPayload)
	if err := ctrl.bind(ctx, payload); err != nil {
		return err
	}

	id, err := ctrl.Manager.RequestNewAccount(ctx.Context(), payload.Username, payload.Email, payload.Password, ctrl.DefaultRole, ctrl.ActivationMail)
	if err != nil {
		return err
	}
	return ctx.JSON(fiber.StatusCreated, fiber.Map{"id": id})
}

func (ctrl *Controller) ActivatePost(ctx router.Context) error {
	payload := new(KeyPayload)
	if err := ctrl.bind(ctx, payload); err != nil {
		return err
	}

	if err := ctrl.Manager.ActivateAccount(ctx.Context(), payload.Key); err != nil {
		return err
	}
	return ctx.NoContent(fiber.StatusNoContent)
}

func (ctrl *Controller) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)
	if err := ctrl.bind(ctx, payload); err != nil {
		return err
	}

	scope, ok := ScopeFrom(ctx)
	if !ok {
		return fiber.ErrInternalServerError
	}

	identity, err := ctrl.Manager.Login(ctx.Context(), scope, payload.Username, payload.Password, ctrl.SessionData)
	if err != nil {
		return err
	}
	setIdentity(ctx, identity)
	return ctx.JSON(fiber.StatusOK, identity)
}

func (ctrl *Controller) LogoutPost(ctx router.Context) error {
	scope, ok := ScopeFrom(ctx)
	if !ok {
		return fiber.ErrInternalServerError
	}
	if err := ctrl.Manager.Logout(ctx.Context(), scope); err != nil {
		return err
	}
	clearIdentity(ctx)
	return ctx.NoContent(fiber.StatusNoContent)
}

// PasswordResetPost answers 202 for unknown identifiers too
func (ctrl *Controller) PasswordResetPost(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)
	if err := ctrl.bind(ctx, payload); err != nil {
		return err
	}

	err := ctrl.Manager.RequestPasswordReset(ctx.Context(), payload.Identifier, ctrl.ResetMail)
	if err != nil {
		if !auth.IsCredentialInvalid(err) {
			return err
		}
		ctrl.Logger.Debug("password reset requested for unknown identifier %q", payload.Identifier)
	}
	return ctx.NoContent(fiber.StatusAccepted)
}

func (ctrl *Controller) PasswordResetExecute(ctx router.Context) error {
	payload := new(PasswordResetExecutePayload)
	if err := ctrl.bind(ctx, payload); err != nil {
		return err
	}

	if err := ctrl.Manager.FinalizePasswordReset(ctx.Context(), ctx.Param("key"), payload.Email, payload.Password); err != nil {
		return err
	}
	return ctx.NoContent(fiber.StatusNoContent)
}

func (ctrl *Controller) MeGet(ctx router.Context) error {
	identity, ok := IdentityFrom(ctx)
	if !ok {
		return fiber.ErrUnauthorized
	}
	return ctx.JSON(fiber.StatusOK, identity)
}

func (ctrl *Controller) defaultActivationMail(s *auth.MailSettings, u *auth.User) error {
	s.Subject = "Activate your account"
	s.Body = fmt.Sprintf("Hi %s,\n\nuse this key to activate your account: %s\n%s%s?key=%s\n",
		u.Username, *u.ActivationKey, ctrl.BaseURL, ctrl.Routes.Activate, *u.ActivationKey)
	return nil
}

func (ctrl *Controller) defaultResetMail(s *auth.MailSettings, u *auth.User) error {
	s.Subject = "Reset your password"
	s.Body = fmt.Sprintf("Hi %s,\n\nreset your password here: %s%s/%s\n",
		u.Username, ctrl.BaseURL, ctrl.Routes.PasswordReset, *u.ResetKey)
	return nil
}
