package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeBadInput                = "BAD_INPUT"
	TextCodeCredentialInvalid       = "CREDENTIAL_INVALID"
	TextCodeKeyExpired              = "KEY_EXPIRED"
	TextCodeUnexpectedAccountStatus = "UNEXPECTED_ACCOUNT_STATUS"
	TextCodeUserAlreadyExists       = "USER_ALREADY_EXISTS"
	TextCodeFailedToFormatMail      = "FAILED_TO_FORMAT_MAIL"
	TextCodeFailedToSendMail        = "FAILED_TO_SEND_MAIL"
	TextCodeCryptoFailure           = "CRYPTO_FAILURE"
	TextCodeFailedDBOp              = "FAILED_DB_OP"
	TextCodeUserNotFound            = "USER_NOT_FOUND"
	TextCodeTooManyLoginAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrBadInput is returned for malformed arguments and unknown ACL
// resources or actions in strict mode.
var ErrBadInput = goerrors.New("bad input", goerrors.CategoryBadInput).
	WithTextCode(TextCodeBadInput).
	WithCode(goerrors.CodeBadRequest)

// ErrCredentialInvalid merges every "who are you" failure: unknown user,
// wrong password, unknown key, email mismatch. The message is the same for
// all of them.
var ErrCredentialInvalid = goerrors.New("user not found or not activated", goerrors.CategoryAuth).
	WithTextCode(TextCodeCredentialInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrKeyExpired is returned when an activation or reset key is past its TTL.
var ErrKeyExpired = goerrors.New("key has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeKeyExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrUnexpectedAccountStatus is returned when the account status does not
// allow the requested operation.
var ErrUnexpectedAccountStatus = goerrors.New("unexpected account status", goerrors.CategoryAuthz).
	WithTextCode(TextCodeUnexpectedAccountStatus).
	WithCode(goerrors.CodeForbidden)

// ErrUserAlreadyExists is returned on registration collisions.
var ErrUserAlreadyExists = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserAlreadyExists).
	WithCode(goerrors.CodeConflict)

// ErrFailedToFormatMail is returned when mail settings fail validation.
var ErrFailedToFormatMail = goerrors.New("failed to format mail", goerrors.CategoryValidation).
	WithTextCode(TextCodeFailedToFormatMail).
	WithCode(goerrors.CodeBadRequest)

// ErrFailedToSendMail is returned when the mailer reports a failure.
var ErrFailedToSendMail = goerrors.New("failed to send mail", goerrors.CategoryOperation).
	WithTextCode(TextCodeFailedToSendMail).
	WithCode(goerrors.CodeInternal)

// ErrCryptoFailure is returned on RNG, hash or cipher provider errors.
var ErrCryptoFailure = goerrors.New("crypto failure", goerrors.CategoryInternal).
	WithTextCode(TextCodeCryptoFailure).
	WithCode(goerrors.CodeInternal)

// ErrFailedDBOp is returned when a write affected no rows.
var ErrFailedDBOp = goerrors.New("failed database operation", goerrors.CategoryInternal).
	WithTextCode(TextCodeFailedDBOp).
	WithCode(goerrors.CodeInternal)

// ErrUserNotFound is the repository "no such row" result.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrTooManyLoginAttempts is returned when the login throttle rejects a request.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyLoginAttempts).
	WithCode(http.StatusTooManyRequests)

// IsBadInput reports whether err belongs to ErrBadInput
func IsBadInput(err error) bool { return hasTextCode(err, TextCodeBadInput) }

// IsCredentialInvalid reports whether err belongs to ErrCredentialInvalid
func IsCredentialInvalid(err error) bool { return hasTextCode(err, TextCodeCredentialInvalid) }

// IsKeyExpired reports whether err belongs to ErrKeyExpired
func IsKeyExpired(err error) bool { return hasTextCode(err, TextCodeKeyExpired) }

// IsUnexpectedAccountStatus reports whether err belongs to ErrUnexpectedAccountStatus
func IsUnexpectedAccountStatus(err error) bool {
	return hasTextCode(err, TextCodeUnexpectedAccountStatus)
}

// IsUserAlreadyExists reports whether err belongs to ErrUserAlreadyExists
func IsUserAlreadyExists(err error) bool { return hasTextCode(err, TextCodeUserAlreadyExists) }

// IsFailedToFormatMail reports whether err belongs to ErrFailedToFormatMail
func IsFailedToFormatMail(err error) bool { return hasTextCode(err, TextCodeFailedToFormatMail) }

// IsFailedToSendMail reports whether err belongs to ErrFailedToSendMail
func IsFailedToSendMail(err error) bool { return hasTextCode(err, TextCodeFailedToSendMail) }

// IsCryptoFailure reports whether err belongs to ErrCryptoFailure
func IsCryptoFailure(err error) bool { return hasTextCode(err, TextCodeCryptoFailure) }

// IsFailedDBOp reports whether err belongs to ErrFailedDBOp
func IsFailedDBOp(err error) bool { return hasTextCode(err, TextCodeFailedDBOp) }

// IsUserNotFound reports whether err belongs to ErrUserNotFound
func IsUserNotFound(err error) bool { return hasTextCode(err, TextCodeUserNotFound) }

// IsTooManyLoginAttempts reports whether err belongs to ErrTooManyLoginAttempts
func IsTooManyLoginAttempts(err error) bool { return hasTextCode(err, TextCodeTooManyLoginAttempts) }

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// withDetail clones base so the sentinel itself is never mutated.
func withDetail(base *goerrors.Error, message string, source error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if message != "" {
		clone.Message = message
	}
	if source != nil {
		clone.Source = source
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// passThrough keeps taxonomy errors intact and wraps everything else as
// an internal failure.
func passThrough(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
