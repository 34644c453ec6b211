package auth_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-account"
	"github.com/stretchr/testify/assert"
)

func TestHasExpired(t *testing.T) {
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		ttl      time.Duration
		expected bool
	}{
		{
			name:     "Within ttl",
			now:      issued.Add(30 * time.Minute),
			ttl:      time.Hour,
			expected: false,
		},
		{
			name:     "At exact boundary",
			now:      issued.Add(time.Hour),
			ttl:      time.Hour,
			expected: false, // strict greater than
		},
		{
			name:     "One second past boundary",
			now:      issued.Add(time.Hour + time.Second),
			ttl:      time.Hour,
			expected: true,
		},
		{
			name:     "Clock before issue time",
			now:      issued.Add(-time.Hour),
			ttl:      time.Hour,
			expected: false,
		},
		{
			name:     "Zero ttl expires after the issuing second",
			now:      issued.Add(time.Second),
			ttl:      0,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.HasExpired(issued.Unix(), tt.ttl, tt.now))
		})
	}
}

func TestExpiresAt(t *testing.T) {
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got := auth.ExpiresAt(issued.Unix(), 2*time.Hour)
	assert.True(t, got.Equal(issued.Add(2*time.Hour)))
}
