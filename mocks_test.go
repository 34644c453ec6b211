package auth_test

import (
	"context"
	"sync"

	auth "github.com/goliatone/go-account"
	"github.com/stretchr/testify/mock"
)

// MockMailer implements auth.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendMail(ctx context.Context, settings auth.MailSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

// LastMail returns the settings of the most recent SendMail call
func (m *MockMailer) LastMail() (auth.MailSettings, bool) {
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == "SendMail" {
			return m.Calls[i].Arguments.Get(1).(auth.MailSettings), true
		}
	}
	return auth.MailSettings{}, false
}

// MockUsers wraps a MemoryUsers and lets tests force write results
type MockUsers struct {
	mock.Mock
	*auth.MemoryUsers
}

func (m *MockUsers) UpdateUserByUserID(ctx context.Context, user *auth.User, fields []auth.Column, id string) (int64, error) {
	args := m.Called(ctx, user, fields, id)
	return args.Get(0).(int64), args.Error(1)
}

// recordingSink keeps every activity event
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// countingCrypto counts password checks
type countingCrypto struct {
	*auth.Crypto
	mu       sync.Mutex
	verifies int
}

func (c *countingCrypto) VerifyPassword(plain, hash string) bool {
	c.mu.Lock()
	c.verifies++
	c.mu.Unlock()
	return c.Crypto.VerifyPassword(plain, hash)
}

func (c *countingCrypto) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifies
}
