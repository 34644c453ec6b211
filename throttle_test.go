package auth_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
)

func TestLoginThrottle(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	throttle := auth.NewLoginThrottle(time.Minute, 2)

	assert.True(t, throttle.Allow("alice", now))
	assert.True(t, throttle.Allow("Alice ", now))
	assert.False(t, throttle.Allow("alice", now))

	// other users have their own bucket
	assert.True(t, throttle.Allow("bob", now))

	assert.True(t, throttle.Allow("alice", now.Add(time.Minute)))
	assert.False(t, throttle.Allow("alice", now.Add(time.Minute)))
}
