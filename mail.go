package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	maxMailAddressLength = 254
	maxMailNameLength    = 255
	maxMailSubjectLength = 998
)

// MailSettings is one outgoing email
type MailSettings struct {
	FromAddress string `json:"fromAddress"`
	FromName    string `json:"fromName,omitempty"`
	ToAddress   string `json:"toAddress"`
	ToName      string `json:"toName,omitempty"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// MailFormatter fills in subject and body. settings arrives seeded with the
// sender from Config and the recipient from user. The user carries the fresh
// activation or reset key.
type MailFormatter func(settings *MailSettings, user *User) error

// Validate returns ErrFailedToFormatMail listing every violated field
func (s MailSettings) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.FromAddress, validation.Required, validation.Length(3, maxMailAddressLength), is.Email),
		validation.Field(&s.FromName, validation.Length(0, maxMailNameLength)),
		validation.Field(&s.ToAddress, validation.Required, validation.Length(3, maxMailAddressLength), is.Email),
		validation.Field(&s.ToName, validation.Length(0, maxMailNameLength)),
		validation.Field(&s.Subject, validation.Required, validation.Length(1, maxMailSubjectLength)),
		validation.Field(&s.Body, validation.Required, validation.Length(1, 0)),
	)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validation.Errors)
	if !ok {
		return withDetail(ErrFailedToFormatMail, err.Error(), err, nil)
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	violations := make([]string, 0, len(fields))
	for _, field := range fields {
		violations = append(violations, fmt.Sprintf("%s: %s", field, verrs[field].Error()))
	}

	return withDetail(ErrFailedToFormatMail, "invalid mail settings: "+strings.Join(violations, ", "), err, map[string]any{
		"fields": fields,
	})
}

func newMailSettings(cfg Config, user *User) MailSettings {
	return MailSettings{
		FromAddress: cfg.GetMailFromAddress(),
		FromName:    cfg.GetMailFromName(),
		ToAddress:   user.Email,
		ToName:      user.Username,
	}
}

// buildMail runs format and validates the result before anything is written
func buildMail(cfg Config, user *User, format MailFormatter) (MailSettings, error) {
	settings := newMailSettings(cfg, user)
	if format == nil {
		return settings, withDetail(ErrFailedToFormatMail, "mail formatter is required", nil, nil)
	}
	if err := format(&settings, user); err != nil {
		return settings, withDetail(ErrFailedToFormatMail, err.Error(), err, nil)
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

func sendMail(ctx context.Context, mailer Mailer, settings MailSettings) error {
	if err := mailer.SendMail(ctx, settings); err != nil {
		return withDetail(ErrFailedToSendMail, "failed to send mail: "+err.Error(), err, map[string]any{
			"to": settings.ToAddress,
		})
	}
	return nil
}
