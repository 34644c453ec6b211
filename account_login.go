package auth

import (
	"context"
	"strconv"
)

// Login verifies username and password and stores the session identity.
// Unknown users and wrong passwords fail with the same ErrCredentialInvalid.
// Cookie writes stay buffered in scope until PostProcess.
func (m *AccountManager) Login(ctx context.Context, scope *Scope, username, password string, makeSession SessionDataFunc) (SessionData, error) {
	if scope == nil {
		return nil, withDetail(ErrBadInput, "scope is required", nil, nil)
	}

	username = NormalizeUsername(username)

	if m.throttle != nil && !m.throttle.Allow(username, m.now()) {
		m.loginFailed(ctx, "", username, ErrTooManyLoginAttempts)
		return nil, ErrTooManyLoginAttempts
	}

	user, err := m.users.GetUserByColumn(ctx, ColumnUsername, username)
	if err != nil {
		if IsUserNotFound(err) {
			// pay the same hashing cost as a wrong password
			m.crypto.VerifyPassword(password, m.placeholderHash())
			m.loginFailed(ctx, "", username, ErrCredentialInvalid)
			return nil, ErrCredentialInvalid
		}
		return nil, passThrough(err, "failed to look up user")
	}

	if err := m.ensureActivated(user); err != nil {
		m.loginFailed(ctx, user.ID, username, err)
		return nil, err
	}

	if !m.crypto.VerifyPassword(password, user.PasswordHash) {
		m.loginFailed(ctx, user.ID, username, ErrCredentialInvalid)
		return nil, ErrCredentialInvalid
	}

	return m.completeLogin(ctx, scope, user, makeSession, "password")
}

// LoginByUserID logs in a known user without a password, e.g. right after
// activation or from an admin impersonation flow.
func (m *AccountManager) LoginByUserID(ctx context.Context, scope *Scope, userID string, makeSession SessionDataFunc) (SessionData, error) {
	if scope == nil {
		return nil, withDetail(ErrBadInput, "scope is required", nil, nil)
	}

	user, err := m.userByID(ctx, userID)
	if err != nil {
		m.loginFailed(ctx, userID, "", err)
		return nil, err
	}

	if err := m.ensureActivated(user); err != nil {
		m.loginFailed(ctx, user.ID, user.Username, err)
		return nil, err
	}

	return m.completeLogin(ctx, scope, user, makeSession, "user_id")
}

// Logout destroys the session, the persistent login and the role cookie
func (m *AccountManager) Logout(ctx context.Context, scope *Scope) error {
	if scope == nil {
		return withDetail(ErrBadInput, "scope is required", nil, nil)
	}

	var userID string
	if identity, ok := scope.sessionIdentity(); ok {
		userID = identity.UserID()
	}

	scope.Session.Destroy()
	scope.resetIdentity()

	if name := m.cfg.GetRoleCookie(); name != "" {
		scope.Cookies.AddClearCookieConfig(name)
	}

	if m.rememberMe != nil {
		if err := m.rememberMe.ClearLogin(ctx, scope.Cookies); err != nil {
			return err
		}
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     ActorRef{ID: userID, Type: "user"},
		UserID:    userID,
	})
	return nil
}

// GetIdentity returns the session identity. When the session is empty and
// remember-me is enabled the identity is recovered from the persistent
// cookie and the session is re-seeded. Resolution happens once per scope.
func (m *AccountManager) GetIdentity(ctx context.Context, scope *Scope) (SessionData, bool, error) {
	if scope == nil {
		return nil, false, withDetail(ErrBadInput, "scope is required", nil, nil)
	}

	if scope.identityResolved {
		return scope.identity, scope.identity != nil, nil
	}

	if identity, ok := scope.sessionIdentity(); ok {
		return m.resolveSessionIdentity(ctx, scope, identity)
	}

	if m.rememberMe == nil {
		scope.resetIdentity()
		return nil, false, nil
	}

	payload, user, ok, err := m.rememberMe.GetLogin(ctx, scope.Cookies)
	if err != nil {
		return nil, false, err
	}
	if !ok || !user.IsActivated() {
		scope.resetIdentity()
		return nil, false, nil
	}

	identity, err := DecodeSessionData(payload)
	if err != nil {
		m.logger.Warn("discarding unreadable persistent login for user %s", user.ID)
		scope.resetIdentity()
		return nil, false, nil
	}
	identity = syncRole(identity, user)

	scope.Session.Put(SessionUserKey, identity)
	scope.setIdentity(identity)

	if name := m.cfg.GetRoleCookie(); name != "" {
		scope.Cookies.AddCookieConfig(name, strconv.Itoa(int(user.Role)), nil)
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventRememberMeSessionRevived,
		Actor:     ActorRef{ID: user.ID, Type: "user"},
		UserID:    user.ID,
	})
	return identity, true, nil
}

// resolveSessionIdentity checks the account behind a session identity.
// Accounts that are gone or no longer ACTIVATED lose the session. A role
// changed since login replaces the cached one.
func (m *AccountManager) resolveSessionIdentity(ctx context.Context, scope *Scope, identity SessionData) (SessionData, bool, error) {
	userID := identity.UserID()
	if userID == "" {
		scope.setIdentity(identity)
		return identity, true, nil
	}

	user, err := m.users.GetUserByColumn(ctx, ColumnID, userID)
	if err != nil && !IsUserNotFound(err) {
		return nil, false, passThrough(err, "failed to look up session user")
	}

	if err != nil || !user.IsActivated() {
		m.logger.Info("dropping session of user %s: account is no longer active", userID)
		scope.Session.Remove(SessionUserKey)
		scope.resetIdentity()
		if name := m.cfg.GetRoleCookie(); name != "" {
			scope.Cookies.AddClearCookieConfig(name)
		}
		return nil, false, nil
	}

	if role, ok := identity.Role(); !ok || role != user.Role {
		identity = syncRole(identity, user)
		scope.Session.Put(SessionUserKey, identity)
		if name := m.cfg.GetRoleCookie(); name != "" {
			scope.Cookies.AddCookieConfig(name, strconv.Itoa(int(user.Role)), nil)
		}
	}

	scope.setIdentity(identity)
	return identity, true, nil
}

// syncRole returns identity carrying the current role of user. Payloads
// without a role entry are left alone.
func syncRole(identity SessionData, user *User) SessionData {
	if _, ok := identity["role"]; !ok {
		return identity
	}
	if role, ok := identity.Role(); ok && role == user.Role {
		return identity
	}
	out := make(SessionData, len(identity))
	for k, v := range identity {
		out[k] = v
	}
	out["role"] = int(user.Role)
	return out
}

// IsLoggedIn reports whether GetIdentity resolves an identity
func (m *AccountManager) IsLoggedIn(ctx context.Context, scope *Scope) bool {
	_, ok, err := m.GetIdentity(ctx, scope)
	return err == nil && ok
}

// PostProcess flushes buffered cookies and commits the session. Call it
// once, at the end of the request.
func (m *AccountManager) PostProcess(ctx context.Context, scope *Scope) error {
	if scope == nil {
		return nil
	}
	scope.Cookies.Flush()
	if committer, ok := scope.Session.(SessionCommitter); ok {
		if err := committer.Commit(ctx); err != nil {
			return passThrough(err, "failed to commit session")
		}
	}
	return nil
}

func (m *AccountManager) completeLogin(ctx context.Context, scope *Scope, user *User, makeSession SessionDataFunc, method string) (SessionData, error) {
	if makeSession == nil {
		makeSession = DefaultSessionData
	}

	data, err := makeSession(user)
	if err != nil {
		return nil, withDetail(ErrBadInput, "failed to build session data", err, nil)
	}
	if data == nil {
		data = SessionData{}
	}

	if regen, ok := scope.Session.(SessionRegenerator); ok {
		if err := regen.Regenerate(); err != nil {
			return nil, passThrough(err, "failed to rotate session")
		}
	}

	scope.Session.Put(SessionUserKey, data)
	scope.setIdentity(data)

	if name := m.cfg.GetRoleCookie(); name != "" {
		scope.Cookies.AddCookieConfig(name, strconv.Itoa(int(user.Role)), nil)
	}

	if m.rememberMe != nil {
		payload, err := data.Encode()
		if err != nil {
			return nil, err
		}
		if err := m.rememberMe.PutLogin(ctx, scope.Cookies, user, payload); err != nil {
			return nil, err
		}
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: user.ID, Type: "user"},
		UserID:    user.ID,
		Metadata:  map[string]any{"method": method},
	})
	return data, nil
}

// placeholderHash is hashed once, on the first unknown username
func (m *AccountManager) placeholderHash() string {
	m.placeholderOnce.Do(func() {
		token, err := m.crypto.RandomToken(16)
		if err != nil {
			token = "placeholder"
		}
		hash, err := m.crypto.HashPassword(token)
		if err != nil {
			m.logger.Warn("failed to build placeholder hash: %v", err)
			return
		}
		m.placeholder = hash
	})
	return m.placeholder
}

func (m *AccountManager) ensureActivated(user *User) error {
	if user.AccountStatus == AccountActivated {
		return nil
	}
	return withDetail(ErrUnexpectedAccountStatus, "", nil, map[string]any{
		"status": user.AccountStatus.String(),
	})
}

func (m *AccountManager) loginFailed(ctx context.Context, userID, username string, err error) {
	m.logger.Debug("login failed for %q: %v", username, err)
	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{ID: userID, Type: "user"},
		UserID:    userID,
		Metadata: map[string]any{
			"identifier": username,
			"error":      err.Error(),
		},
	})
}
