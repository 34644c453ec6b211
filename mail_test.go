package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMail() auth.MailSettings {
	return auth.MailSettings{
		FromAddress: "noreply@example.com",
		FromName:    "Example",
		ToAddress:   "alice@example.com",
		ToName:      "alice",
		Subject:     "Activate your account",
		Body:        "Your key is abc",
	}
}

func TestMailSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*auth.MailSettings)
		wantErr bool
		fields  []string
	}{
		{
			name:   "Valid settings",
			mutate: func(*auth.MailSettings) {},
		},
		{
			name: "Names are optional",
			mutate: func(s *auth.MailSettings) {
				s.FromName = ""
				s.ToName = ""
			},
		},
		{
			name: "Missing subject",
			mutate: func(s *auth.MailSettings) {
				s.Subject = ""
			},
			wantErr: true,
			fields:  []string{"subject"},
		},
		{
			name: "Every required field missing",
			mutate: func(s *auth.MailSettings) {
				*s = auth.MailSettings{}
			},
			wantErr: true,
			fields:  []string{"body", "fromAddress", "subject", "toAddress"},
		},
		{
			name: "Malformed recipient",
			mutate: func(s *auth.MailSettings) {
				s.ToAddress = "not-an-email"
			},
			wantErr: true,
			fields:  []string{"toAddress"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validMail()
			tt.mutate(&s)
			err := s.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, auth.IsFailedToFormatMail(err))

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, tt.fields, richErr.Metadata["fields"])
			for _, f := range tt.fields {
				assert.Contains(t, richErr.Message, f+":")
			}
		})
	}
}

func TestMailSettingsValidateJoinsViolations(t *testing.T) {
	s := validMail()
	s.Subject = ""
	s.Body = ""

	err := s.Validate()
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "invalid mail settings: body: cannot be blank, subject: cannot be blank", richErr.Message)
}

func TestMailSettingsValidateDoesNotMutateSentinel(t *testing.T) {
	s := validMail()
	s.Body = ""
	require.Error(t, s.Validate())
	assert.Equal(t, "failed to format mail", auth.ErrFailedToFormatMail.Message)
}
