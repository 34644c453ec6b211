package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// AccountManager runs the account lifecycle: registration, activation,
// password reset, login and logout. It holds no per request state and is
// safe to share; request state travels in a Scope.
type AccountManager struct {
	users        UserRepository
	mailer       Mailer
	cfg          Config
	crypto       CryptoProvider
	rememberMe   *RememberMe
	states       AccountStateMachine
	throttle     *LoginThrottle
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time

	placeholderOnce sync.Once
	placeholder     string
}

// Option customizes an AccountManager
type Option func(*AccountManager)

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(m *AccountManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(m *AccountManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithCrypto replaces the default Crypto
func WithCrypto(crypto CryptoProvider) Option {
	return func(m *AccountManager) {
		if crypto != nil {
			m.crypto = crypto
		}
	}
}

// WithRememberMe overrides the RememberMe built from Config
func WithRememberMe(rm *RememberMe) Option {
	return func(m *AccountManager) {
		m.rememberMe = rm
	}
}

// WithActivitySink configures an ActivitySink for emitting account events.
func WithActivitySink(sink ActivitySink) Option {
	return func(m *AccountManager) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithLoginRateLimit throttles password logins per username
func WithLoginRateLimit(every time.Duration, burst int) Option {
	return func(m *AccountManager) {
		m.throttle = NewLoginThrottle(every, burst)
	}
}

// NewAccountManager wires the account flows. Remember-me is enabled when
// cfg names a remember-me cookie.
func NewAccountManager(users UserRepository, mailer Mailer, cfg Config, opts ...Option) *AccountManager {
	if cfg == nil {
		cfg = DefaultOptions()
	}

	m := &AccountManager{
		users:        users,
		mailer:       mailer,
		cfg:          cfg,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.crypto == nil {
		m.crypto = NewCrypto()
	}

	if m.rememberMe == nil && cfg.GetRememberMeCookie() != "" {
		m.rememberMe = NewRememberMe(users, m.crypto, cfg.GetRememberMeCookie(), cfg.GetRememberMeDuration(),
			WithRememberMeClock(m.now),
			WithRememberMeLogger(m.logger),
			WithRememberMeActivitySink(m.activitySink),
		)
	}

	m.states = NewAccountStateMachine(users,
		WithStateMachineClock(m.now),
		WithStateMachineActivitySink(m.activitySink),
		WithStateMachineLogger(m.logger),
	)

	return m
}

// RememberMe returns the persistent login handler, nil when disabled
func (m *AccountManager) RememberMe() *RememberMe {
	return m.rememberMe
}

// RequestNewAccount registers an UNACTIVATED user and mails the activation
// key. Insert and send share a transaction: a failed send leaves no user.
func (m *AccountManager) RequestNewAccount(ctx context.Context, username, email, password string, role Role, format MailFormatter) (string, error) {
	username = NormalizeUsername(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" {
		return "", withDetail(ErrBadInput, "username and email are required", nil, nil)
	}
	if !role.IsValid() {
		return "", withDetail(ErrBadInput, "invalid role", nil, map[string]any{"role": int(role)})
	}

	if _, err := m.users.GetUserByColumn(ctx, ColumnUsername, username); err == nil {
		return "", withDetail(ErrUserAlreadyExists, "", nil, map[string]any{"column": string(ColumnUsername)})
	} else if !IsUserNotFound(err) {
		return "", passThrough(err, "failed to look up username")
	}

	id, err := m.crypto.NewGUID()
	if err != nil {
		return "", err
	}
	hash, err := m.crypto.HashPassword(password)
	if err != nil {
		return "", err
	}
	key, err := m.crypto.RandomToken(DefaultTokenBytes)
	if err != nil {
		return "", err
	}

	user := &User{
		ID:               id,
		Username:         username,
		Email:            email,
		PasswordHash:     hash,
		Role:             role,
		AccountStatus:    AccountUnactivated,
		ActivationKey:    strPtr(key),
		AccountCreatedAt: m.now().Unix(),
	}

	settings, err := buildMail(m.cfg, user, format)
	if err != nil {
		return "", err
	}

	err = m.users.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := m.users.CreateUser(ctx, user); err != nil {
			return passThrough(err, "failed to create user")
		}
		return sendMail(ctx, m.mailer, settings)
	})
	if err != nil {
		m.logger.Warn("registration for %q failed: %v", username, err)
		return "", err
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     ActorRef{ID: id, Type: "user"},
		UserID:    id,
		ToStatus:  AccountUnactivated,
		Metadata:  map[string]any{"role": int(role)},
	})

	return id, nil
}

// ActivateAccount consumes an activation key. An expired key deletes the
// still unactivated account when GetDeleteExpiredAccounts is on.
func (m *AccountManager) ActivateAccount(ctx context.Context, activationKey string) error {
	if activationKey == "" {
		return ErrCredentialInvalid
	}

	user, err := m.users.GetUserByColumn(ctx, ColumnActivationKey, activationKey)
	if err != nil {
		if IsUserNotFound(err) {
			return ErrCredentialInvalid
		}
		return passThrough(err, "failed to look up activation key")
	}

	if user.AccountStatus != AccountUnactivated {
		return withDetail(ErrUnexpectedAccountStatus, "", nil, map[string]any{
			"status": user.AccountStatus.String(),
		})
	}

	if HasExpired(user.AccountCreatedAt, m.cfg.GetActivationKeyTTL(), m.now()) {
		deleted := false
		if m.cfg.GetDeleteExpiredAccounts() {
			if _, err := m.users.DeleteUserByUserID(ctx, user.ID); err != nil {
				return passThrough(err, "failed to delete expired account")
			}
			deleted = true
		}
		m.emit(ctx, ActivityEvent{
			EventType:  ActivityEventActivationExpired,
			Actor:      ActorRef{Type: "system"},
			UserID:     user.ID,
			FromStatus: AccountUnactivated,
			Metadata:   map[string]any{"deleted": deleted},
		})
		return ErrKeyExpired
	}

	user.ActivationKey = nil
	_, err = m.states.Transition(ctx, ActorRef{ID: user.ID, Type: "user"}, user, AccountActivated,
		WithTransitionFields(ColumnActivationKey),
		WithTransitionReason("activation"),
	)
	if err != nil {
		return err
	}

	m.emit(ctx, ActivityEvent{
		EventType:  ActivityEventAccountActivated,
		Actor:      ActorRef{ID: user.ID, Type: "user"},
		UserID:     user.ID,
		FromStatus: AccountUnactivated,
		ToStatus:   AccountActivated,
	})
	return nil
}

// RequestPasswordReset opens a reset window for an ACTIVATED account and
// mails the reset key. Standing remember-me logins are dropped in the same
// write when remember-me is enabled.
func (m *AccountManager) RequestPasswordReset(ctx context.Context, usernameOrEmail string, format MailFormatter) error {
	user, err := m.findByUsernameOrEmail(ctx, strings.TrimSpace(usernameOrEmail))
	if err != nil {
		return err
	}

	if user.AccountStatus != AccountActivated {
		return withDetail(ErrUnexpectedAccountStatus, "", nil, map[string]any{
			"status": user.AccountStatus.String(),
		})
	}

	key, err := m.crypto.RandomToken(DefaultTokenBytes)
	if err != nil {
		return err
	}

	updated := user.Clone()
	updated.ResetKey = strPtr(key)
	updated.ResetRequestedAt = int64Ptr(m.now().Unix())

	fields := append([]Column{}, ResetFields...)
	if m.rememberMe != nil {
		updated.ClearLogin()
		fields = append(fields, LoginFields...)
	}

	settings, err := buildMail(m.cfg, updated, format)
	if err != nil {
		return err
	}

	err = m.users.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := m.users.UpdateUserByUserID(ctx, updated, fields, user.ID)
		if err != nil {
			return passThrough(err, "failed to store reset key")
		}
		if n == 0 {
			return withDetail(ErrFailedDBOp, "reset key was not stored", nil, map[string]any{"user_id": user.ID})
		}
		return sendMail(ctx, m.mailer, settings)
	})
	if err != nil {
		return err
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		Actor:     ActorRef{ID: user.ID, Type: "user"},
		UserID:    user.ID,
	})
	return nil
}

// FinalizePasswordReset sets a new password with a valid reset key. Unknown
// keys and email mismatches fail the same way.
func (m *AccountManager) FinalizePasswordReset(ctx context.Context, resetKey, email, newPassword string) error {
	if resetKey == "" {
		return ErrCredentialInvalid
	}

	user, err := m.users.GetUserByColumn(ctx, ColumnResetKey, resetKey)
	if err != nil {
		if IsUserNotFound(err) {
			return ErrCredentialInvalid
		}
		return passThrough(err, "failed to look up reset key")
	}

	if !strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(user.Email)) {
		return ErrCredentialInvalid
	}

	if user.ResetRequestedAt == nil || HasExpired(*user.ResetRequestedAt, m.cfg.GetResetKeyTTL(), m.now()) {
		return ErrKeyExpired
	}

	hash, err := m.crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}

	updated := user.Clone().ClearReset()
	updated.PasswordHash = hash

	fields := append([]Column{ColumnPasswordHash}, ResetFields...)
	n, err := m.users.UpdateUserByUserID(ctx, updated, fields, user.ID)
	if err != nil {
		return passThrough(err, "failed to store new password")
	}
	if n == 0 {
		return withDetail(ErrFailedDBOp, "password was not updated", nil, map[string]any{"user_id": user.ID})
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     ActorRef{ID: user.ID, Type: "user"},
		UserID:    user.ID,
	})
	return nil
}

// UpdatePassword replaces the password of userID
func (m *AccountManager) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	user, err := m.userByID(ctx, userID)
	if err != nil {
		return err
	}

	hash, err := m.crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}

	updated := user.Clone()
	updated.PasswordHash = hash
	n, err := m.users.UpdateUserByUserID(ctx, updated, []Column{ColumnPasswordHash}, user.ID)
	if err != nil {
		return passThrough(err, "failed to store new password")
	}
	if n == 0 {
		return withDetail(ErrFailedDBOp, "password was not updated", nil, map[string]any{"user_id": user.ID})
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventPasswordUpdated,
		Actor:     ActorRef{ID: user.ID, Type: "user"},
		UserID:    user.ID,
	})
	return nil
}

// UpdateRole assigns a single role bit to userID and drops its persistent
// login. Live sessions pick the new role up on their next GetIdentity.
func (m *AccountManager) UpdateRole(ctx context.Context, actor ActorRef, userID string, role Role) error {
	if !role.IsValid() {
		return withDetail(ErrBadInput, "invalid role", nil, map[string]any{"role": int(role)})
	}

	user, err := m.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role == role {
		return nil
	}

	// the stored login_data snapshot carries the old role
	updated := user.Clone().ClearLogin()
	updated.Role = role
	fields := append([]Column{ColumnRole}, LoginFields...)
	n, err := m.users.UpdateUserByUserID(ctx, updated, fields, user.ID)
	if err != nil {
		return passThrough(err, "failed to update role")
	}
	if n == 0 {
		return withDetail(ErrFailedDBOp, "role was not updated", nil, map[string]any{"user_id": user.ID})
	}

	m.emit(ctx, ActivityEvent{
		EventType: ActivityEventAccountRoleChanged,
		Actor:     actor,
		UserID:    user.ID,
		Metadata:  map[string]any{"from": int(user.Role), "to": int(role)},
	})
	return nil
}

// Ban moves an ACTIVATED account to BANNED and drops its persistent login
func (m *AccountManager) Ban(ctx context.Context, actor ActorRef, userID string, opts ...TransitionOption) error {
	user, err := m.userByID(ctx, userID)
	if err != nil {
		return err
	}

	user.ClearLogin()
	opts = append(opts, WithTransitionFields(LoginFields...))
	_, err = m.states.Transition(ctx, actor, user, AccountBanned, opts...)
	return err
}

// Unban moves a BANNED account back to ACTIVATED
func (m *AccountManager) Unban(ctx context.Context, actor ActorRef, userID string, opts ...TransitionOption) error {
	user, err := m.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.AccountStatus != AccountBanned {
		return withDetail(ErrUnexpectedAccountStatus, "", nil, map[string]any{
			"status": user.AccountStatus.String(),
		})
	}

	_, err = m.states.Transition(ctx, actor, user, AccountActivated, opts...)
	return err
}

func (m *AccountManager) userByID(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrCredentialInvalid
	}
	user, err := m.users.GetUserByColumn(ctx, ColumnID, userID)
	if err != nil {
		if IsUserNotFound(err) {
			return nil, ErrCredentialInvalid
		}
		return nil, passThrough(err, "failed to look up user")
	}
	return user, nil
}

func (m *AccountManager) findByUsernameOrEmail(ctx context.Context, identifier string) (*User, error) {
	if identifier == "" {
		return nil, ErrCredentialInvalid
	}

	columns := []Column{ColumnUsername, ColumnEmail}
	if strings.Contains(identifier, "@") {
		columns = []Column{ColumnEmail, ColumnUsername}
	}

	for _, col := range columns {
		value := identifier
		if col == ColumnUsername {
			value = NormalizeUsername(identifier)
		}
		user, err := m.users.GetUserByColumn(ctx, col, value)
		if err == nil {
			return user, nil
		}
		if !IsUserNotFound(err) {
			return nil, passThrough(err, "failed to look up user")
		}
	}
	return nil, ErrCredentialInvalid
}

func (m *AccountManager) emit(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}
	recordActivity(ctx, m.activitySink, m.logger, event)
}
