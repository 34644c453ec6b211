package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// UserRepository is the persistence port over the users table.
// GetUserByColumn returns ErrUserNotFound when no row matches. Writes
// running inside RunInTransaction's fn commit or roll back together.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) (string, error)
	GetUserByColumn(ctx context.Context, column Column, value string) (*User, error)
	UpdateUserByUserID(ctx context.Context, user *User, fields []Column, id string) (int64, error)
	DeleteUserByUserID(ctx context.Context, id string) (int64, error)
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Session is a key/value bucket tied to the request lifecycle
type Session interface {
	Get(key string) (any, bool)
	Put(key string, value any)
	Remove(key string)
	Destroy()
}

// SessionRegenerator is implemented by sessions that can move their data
// to a fresh id. Login rotates the id so a planted id never authenticates.
type SessionRegenerator interface {
	Regenerate() error
}

// SessionCommitter is implemented by sessions that buffer writes
type SessionCommitter interface {
	Commit(ctx context.Context) error
}

// CookieStorage moves cookies on and off the wire
type CookieStorage interface {
	GetCookie(name string) (string, bool)
	StoreCookie(raw string)
}

// Mailer delivers account emails
type Mailer interface {
	SendMail(ctx context.Context, settings MailSettings) error
}

// MailerFunc adapts a function to the Mailer interface
type MailerFunc func(ctx context.Context, settings MailSettings) error

// SendMail implements Mailer.
func (f MailerFunc) SendMail(ctx context.Context, settings MailSettings) error {
	return f(ctx, settings)
}

// CryptoProvider is what the account flows need from Crypto
type CryptoProvider interface {
	HashPassword(plain string) (string, error)
	VerifyPassword(plain, hash string) bool
	RandomToken(byteLen int) (string, error)
	NewGUID() (string, error)
	KeyedHash(algo HashAlgorithm, input string) (string, error)
}

// Config holds account options
type Config interface {
	GetActivationKeyTTL() time.Duration
	GetResetKeyTTL() time.Duration
	GetRememberMeCookie() string
	GetRememberMeDuration() time.Duration
	GetRoleCookie() string
	GetMailFromAddress() string
	GetMailFromName() string
	GetDeleteExpiredAccounts() bool
	GetStrictACL() bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NopLogger discards everything, handy in tests
func NopLogger() Logger { return nopLogger{} }
