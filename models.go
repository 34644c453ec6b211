package auth

import (
	"strings"

	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus int

const (
	// AccountUnactivated is a registered account waiting for its activation key
	AccountUnactivated AccountStatus = iota
	// AccountActivated can log in
	AccountActivated
	// AccountBanned can not log in nor reset its password
	AccountBanned
)

func (s AccountStatus) String() string {
	switch s {
	case AccountUnactivated:
		return "unactivated"
	case AccountActivated:
		return "activated"
	case AccountBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// Column names a users table column
type Column string

const (
	ColumnID                   Column = "id"
	ColumnUsername             Column = "username"
	ColumnEmail                Column = "email"
	ColumnPasswordHash         Column = "password_hash"
	ColumnRole                 Column = "role"
	ColumnAccountStatus        Column = "account_status"
	ColumnActivationKey        Column = "activation_key"
	ColumnAccountCreatedAt     Column = "account_created_at"
	ColumnResetKey             Column = "reset_key"
	ColumnResetRequestedAt     Column = "reset_requested_at"
	ColumnLoginID              Column = "login_id"
	ColumnLoginIDValidatorHash Column = "login_id_validator_hash"
	ColumnLoginData            Column = "login_data"
)

var lookupColumns = map[Column]struct{}{
	ColumnID:            {},
	ColumnUsername:      {},
	ColumnEmail:         {},
	ColumnActivationKey: {},
	ColumnResetKey:      {},
	ColumnLoginID:       {},
}

var writableColumns = map[Column]struct{}{
	ColumnUsername:             {},
	ColumnEmail:                {},
	ColumnPasswordHash:         {},
	ColumnRole:                 {},
	ColumnAccountStatus:        {},
	ColumnActivationKey:        {},
	ColumnResetKey:             {},
	ColumnResetRequestedAt:     {},
	ColumnLoginID:              {},
	ColumnLoginIDValidatorHash: {},
	ColumnLoginData:            {},
}

// IsLookup reports whether the column may be used by GetUserByColumn
func (c Column) IsLookup() bool {
	_, ok := lookupColumns[c]
	return ok
}

// IsWritable reports whether the column may be used by UpdateUserByUserID
func (c Column) IsWritable() bool {
	_, ok := writableColumns[c]
	return ok
}

// LoginFields are the remember-me columns, always written together
var LoginFields = []Column{ColumnLoginID, ColumnLoginIDValidatorHash, ColumnLoginData}

// ResetFields are the password reset columns, always written together
var ResetFields = []Column{ColumnResetKey, ColumnResetRequestedAt}

// User is the identity and credential record
type User struct {
	bun.BaseModel        `bun:"table:users,alias:usr"`
	ID                   string        `bun:"id,pk" json:"id"`
	Username             string        `bun:"username,notnull,unique" json:"username"`
	Email                string        `bun:"email,notnull,unique" json:"email"`
	PasswordHash         string        `bun:"password_hash,notnull" json:"-"`
	Role                 Role          `bun:"role,notnull" json:"role"`
	AccountStatus        AccountStatus `bun:"account_status,notnull" json:"account_status"`
	ActivationKey        *string       `bun:"activation_key" json:"-"`
	AccountCreatedAt     int64         `bun:"account_created_at,notnull" json:"account_created_at"`
	ResetKey             *string       `bun:"reset_key" json:"-"`
	ResetRequestedAt     *int64        `bun:"reset_requested_at" json:"-"`
	LoginID              *string       `bun:"login_id" json:"-"`
	LoginIDValidatorHash *string       `bun:"login_id_validator_hash" json:"-"`
	LoginData            *string       `bun:"login_data" json:"-"`
}

// NormalizeUsername is the canonical form usernames are stored, looked up
// and throttled under: trimmed and lowercased.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// IsActivated reports whether the account can log in
func (u *User) IsActivated() bool {
	return u != nil && u.AccountStatus == AccountActivated
}

// HasPersistentLogin reports whether a remember-me triple is stored
func (u *User) HasPersistentLogin() bool {
	return u != nil && u.LoginID != nil
}

// HasPendingReset reports whether a password reset window is open
func (u *User) HasPendingReset() bool {
	return u != nil && u.ResetKey != nil
}

// ClearLogin drops the remember-me triple
func (u *User) ClearLogin() *User {
	u.LoginID = nil
	u.LoginIDValidatorHash = nil
	u.LoginData = nil
	return u
}

// ClearReset closes the password reset window
func (u *User) ClearReset() *User {
	u.ResetKey = nil
	u.ResetRequestedAt = nil
	return u
}

// Clone returns a deep copy, pointer fields included
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.ActivationKey = cloneString(u.ActivationKey)
	c.ResetKey = cloneString(u.ResetKey)
	c.LoginID = cloneString(u.LoginID)
	c.LoginIDValidatorHash = cloneString(u.LoginIDValidatorHash)
	c.LoginData = cloneString(u.LoginData)
	if u.ResetRequestedAt != nil {
		v := *u.ResetRequestedAt
		c.ResetRequestedAt = &v
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
