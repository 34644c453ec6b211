package auth

import "time"

// HasExpired reports whether now is strictly past issuedAt + ttl.
// issuedAt is a unix timestamp; being exactly on the boundary is still valid.
func HasExpired(issuedAt int64, ttl time.Duration, now time.Time) bool {
	return now.Unix() > issuedAt+int64(ttl/time.Second)
}

// ExpiresAt returns the instant a key issued at issuedAt stops being valid
func ExpiresAt(issuedAt int64, ttl time.Duration) time.Time {
	return time.Unix(issuedAt, 0).Add(ttl)
}
