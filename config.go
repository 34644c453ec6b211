package auth

import "time"

const (
	// DefaultActivationKeyTTL is how long a fresh account can wait for activation
	DefaultActivationKeyTTL = 48 * time.Hour
	// DefaultResetKeyTTL is how long a password reset key stays valid
	DefaultResetKeyTTL = 2 * time.Hour
	// DefaultRememberMeDuration is roughly six months
	DefaultRememberMeDuration = 183 * 24 * time.Hour
)

var _ Config = Options{}

// Options is the plain struct implementation of Config.
// Empty cookie names disable the matching feature.
type Options struct {
	ActivationKeyTTL      time.Duration `json:"activation_key_ttl"`
	ResetKeyTTL           time.Duration `json:"reset_key_ttl"`
	RememberMeCookie      string        `json:"remember_me_cookie"`
	RememberMeDuration    time.Duration `json:"remember_me_duration"`
	RoleCookie            string        `json:"role_cookie"`
	MailFromAddress       string        `json:"mail_from_address"`
	MailFromName          string        `json:"mail_from_name"`
	DeleteExpiredAccounts bool          `json:"delete_expired_accounts"`
	StrictACL             bool          `json:"strict_acl"`
}

// DefaultOptions returns Options with remember-me and the role cookie disabled
func DefaultOptions() Options {
	return Options{
		ActivationKeyTTL:      DefaultActivationKeyTTL,
		ResetKeyTTL:           DefaultResetKeyTTL,
		RememberMeDuration:    DefaultRememberMeDuration,
		DeleteExpiredAccounts: true,
	}
}

func (o Options) GetActivationKeyTTL() time.Duration {
	if o.ActivationKeyTTL <= 0 {
		return DefaultActivationKeyTTL
	}
	return o.ActivationKeyTTL
}

func (o Options) GetResetKeyTTL() time.Duration {
	if o.ResetKeyTTL <= 0 {
		return DefaultResetKeyTTL
	}
	return o.ResetKeyTTL
}

func (o Options) GetRememberMeCookie() string {
	return o.RememberMeCookie
}

func (o Options) GetRememberMeDuration() time.Duration {
	if o.RememberMeDuration <= 0 {
		return DefaultRememberMeDuration
	}
	return o.RememberMeDuration
}

func (o Options) GetRoleCookie() string {
	return o.RoleCookie
}

func (o Options) GetMailFromAddress() string {
	return o.MailFromAddress
}

func (o Options) GetMailFromName() string {
	return o.MailFromName
}

func (o Options) GetDeleteExpiredAccounts() bool {
	return o.DeleteExpiredAccounts
}

func (o Options) GetStrictACL() bool {
	return o.StrictACL
}
