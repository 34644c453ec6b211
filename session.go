package auth

import (
	"encoding/json"
	"strconv"
	"sync"
)

// SessionUserKey is the session key holding the logged in identity
const SessionUserKey = "user"

// SessionData is the identity payload stored in the session and, encoded
// as JSON, in the remember-me login_data column.
type SessionData map[string]any

// SessionDataFunc builds the session payload for a user that just logged in
type SessionDataFunc func(user *User) (SessionData, error)

// DefaultSessionData stores id, username, email and role
func DefaultSessionData(user *User) (SessionData, error) {
	return SessionData{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"role":     int(user.Role),
	}, nil
}

// UserID returns the "id" entry
func (d SessionData) UserID() string {
	v, _ := d["id"].(string)
	return v
}

// Username returns the "username" entry
func (d SessionData) Username() string {
	v, _ := d["username"].(string)
	return v
}

// Role returns the "role" entry. JSON round trips turn it into a float64.
func (d SessionData) Role() (Role, bool) {
	var role Role
	switch v := d["role"].(type) {
	case Role:
		role = v
	case int:
		role = Role(v)
	case int64:
		role = Role(v)
	case float64:
		role = Role(int(v))
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		role = Role(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		role = Role(n)
	default:
		return 0, false
	}
	return role, role.IsValid()
}

// Encode returns the JSON form stored as login_data
func (d SessionData) Encode() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", withDetail(ErrBadInput, "session data is not serializable", err, nil)
	}
	return string(raw), nil
}

// DecodeSessionData parses a login_data payload
func DecodeSessionData(raw string) (SessionData, error) {
	var d SessionData
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, withDetail(ErrBadInput, "malformed session data", err, nil)
	}
	return d, nil
}

var (
	_ Session            = (*MemorySession)(nil)
	_ SessionRegenerator = (*MemorySession)(nil)
)

// MemorySession is a map backed Session
type MemorySession struct {
	mu          sync.RWMutex
	values      map[string]any
	destroyed   bool
	generations int
}

// NewMemorySession returns an empty session
func NewMemorySession() *MemorySession {
	return &MemorySession{values: map[string]any{}}
}

func (s *MemorySession) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemorySession) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.destroyed = false
}

func (s *MemorySession) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *MemorySession) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]any{}
	s.destroyed = true
}

// Regenerate keeps the values and counts the rotation
func (s *MemorySession) Regenerate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations++
	return nil
}

// Generations reports how many times Regenerate ran
func (s *MemorySession) Generations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations
}

// Destroyed reports whether Destroy ran after the last Put
func (s *MemorySession) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// Scope is the per request state handed to AccountManager operations.
// It is not safe for concurrent use.
type Scope struct {
	Session Session
	Cookies *CookieManager

	identityResolved bool
	identity         SessionData
}

// NewScope binds a session and a cookie buffer for one request
func NewScope(session Session, cookies *CookieManager) *Scope {
	if session == nil {
		session = NewMemorySession()
	}
	if cookies == nil {
		cookies = NewCookieManager(nil)
	}
	return &Scope{Session: session, Cookies: cookies}
}

func (s *Scope) sessionIdentity() (SessionData, bool) {
	raw, ok := s.Session.Get(SessionUserKey)
	if !ok || raw == nil {
		return nil, false
	}
	switch v := raw.(type) {
	case SessionData:
		return v, true
	case map[string]any:
		return SessionData(v), true
	case string:
		d, err := DecodeSessionData(v)
		return d, err == nil
	default:
		return nil, false
	}
}

func (s *Scope) setIdentity(identity SessionData) {
	s.identity = identity
	s.identityResolved = true
}

func (s *Scope) resetIdentity() {
	s.identity = nil
	s.identityResolved = true
}
