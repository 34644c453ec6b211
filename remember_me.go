package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"
)

const rememberMeSeparator = ":"

// RememberMe implements the selector/validator persistent login.
// The selector is stored as login_id, only sha256(validator) is stored.
type RememberMe struct {
	users        UserRepository
	crypto       CryptoProvider
	cookieName   string
	duration     time.Duration
	now          func() time.Time
	logger       Logger
	activitySink ActivitySink
}

// RememberMeOption customizes RememberMe
type RememberMeOption func(*RememberMe)

// WithRememberMeClock injects a custom clock
func WithRememberMeClock(clock func() time.Time) RememberMeOption {
	return func(r *RememberMe) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithRememberMeLogger sets the logger
func WithRememberMeLogger(logger Logger) RememberMeOption {
	return func(r *RememberMe) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRememberMeActivitySink receives compromised token events
func WithRememberMeActivitySink(sink ActivitySink) RememberMeOption {
	return func(r *RememberMe) {
		r.activitySink = normalizeActivitySink(sink)
	}
}

// NewRememberMe returns a RememberMe writing cookieName for duration
func NewRememberMe(users UserRepository, crypto CryptoProvider, cookieName string, duration time.Duration, opts ...RememberMeOption) *RememberMe {
	if duration <= 0 {
		duration = DefaultRememberMeDuration
	}
	r := &RememberMe{
		users:        users,
		crypto:       crypto,
		cookieName:   cookieName,
		duration:     duration,
		now:          time.Now,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// CookieName is the remember-me cookie name
func (r *RememberMe) CookieName() string {
	return r.cookieName
}

// PutLogin stores a fresh selector/validator pair with payload and queues
// the cookie. The three login columns are written in one update.
func (r *RememberMe) PutLogin(ctx context.Context, cookies *CookieManager, user *User, payload string) error {
	if user == nil || user.ID == "" {
		return withDetail(ErrBadInput, "remember me requires a persisted user", nil, nil)
	}

	selector, err := r.crypto.RandomToken(DefaultTokenBytes)
	if err != nil {
		return err
	}
	validator, err := r.crypto.RandomToken(DefaultTokenBytes)
	if err != nil {
		return err
	}
	validatorHash, err := r.crypto.KeyedHash(HashSHA256, validator)
	if err != nil {
		return err
	}

	updated := user.Clone()
	updated.LoginID = strPtr(selector)
	updated.LoginIDValidatorHash = strPtr(validatorHash)
	updated.LoginData = strPtr(payload)

	n, err := r.users.UpdateUserByUserID(ctx, updated, LoginFields, user.ID)
	if err != nil {
		return passThrough(err, "failed to store persistent login")
	}
	if n == 0 {
		return withDetail(ErrFailedDBOp, "persistent login was not stored", nil, map[string]any{
			"user_id": user.ID,
		})
	}

	user.LoginID = updated.LoginID
	user.LoginIDValidatorHash = updated.LoginIDValidatorHash
	user.LoginData = updated.LoginData

	expires := r.now().Add(r.duration)
	cookies.AddCookieConfig(r.cookieName, selector+rememberMeSeparator+validator, &expires)
	return nil
}

// GetLogin returns the payload stored for the request's remember-me cookie.
// A validator mismatch wipes the user's persistent login and returns nothing.
func (r *RememberMe) GetLogin(ctx context.Context, cookies *CookieManager) (string, *User, bool, error) {
	selector, validator, ok := r.parseCookie(cookies)
	if !ok {
		return "", nil, false, nil
	}

	user, err := r.users.GetUserByColumn(ctx, ColumnLoginID, selector)
	if err != nil {
		if IsUserNotFound(err) {
			return "", nil, false, nil
		}
		return "", nil, false, passThrough(err, "failed to look up persistent login")
	}

	if user.LoginIDValidatorHash == nil || user.LoginData == nil {
		return "", nil, false, nil
	}

	hash, err := r.crypto.KeyedHash(HashSHA256, validator)
	if err != nil {
		return "", nil, false, err
	}

	if subtle.ConstantTimeCompare([]byte(hash), []byte(*user.LoginIDValidatorHash)) != 1 {
		r.logger.Warn("persistent login validator mismatch for user %s", user.ID)
		if err := r.clearUserLogin(ctx, user); err != nil {
			return "", nil, false, err
		}
		cookies.AddClearCookieConfig(r.cookieName)
		recordActivity(ctx, r.activitySink, r.logger, ActivityEvent{
			EventType:  ActivityEventRememberMeCompromised,
			UserID:     user.ID,
			OccurredAt: r.now(),
		})
		return "", nil, false, nil
	}

	return *user.LoginData, user, true, nil
}

// ClearLogin wipes the persistent login named by the cookie, if any, and
// always queues a clearing cookie.
func (r *RememberMe) ClearLogin(ctx context.Context, cookies *CookieManager) error {
	defer cookies.AddClearCookieConfig(r.cookieName)

	selector, _, ok := r.parseCookie(cookies)
	if !ok {
		return nil
	}

	user, err := r.users.GetUserByColumn(ctx, ColumnLoginID, selector)
	if err != nil {
		if IsUserNotFound(err) {
			return nil
		}
		return passThrough(err, "failed to look up persistent login")
	}

	return r.clearUserLogin(ctx, user)
}

func (r *RememberMe) clearUserLogin(ctx context.Context, user *User) error {
	updated := user.Clone().ClearLogin()
	n, err := r.users.UpdateUserByUserID(ctx, updated, LoginFields, user.ID)
	if err != nil {
		return passThrough(err, "failed to clear persistent login")
	}
	if n == 0 {
		return withDetail(ErrFailedDBOp, "persistent login was not cleared", nil, map[string]any{
			"user_id": user.ID,
		})
	}
	user.ClearLogin()
	return nil
}

func (r *RememberMe) parseCookie(cookies *CookieManager) (string, string, bool) {
	raw, ok := cookies.GetCookie(r.cookieName)
	if !ok || raw == "" || raw == ClearedCookieValue {
		return "", "", false
	}
	selector, validator, found := strings.Cut(raw, rememberMeSeparator)
	if !found || selector == "" || validator == "" {
		return "", "", false
	}
	return selector, validator, true
}
