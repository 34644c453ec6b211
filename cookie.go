package auth

import (
	"net/http"
	"strings"
	"time"
)

// ClearedCookieValue is the placeholder value sent when deleting a cookie
const ClearedCookieValue = "deleted"

// clearedCookieExpiry serializes to Thu, 01 Jan 1970 00:00:01 GMT
var clearedCookieExpiry = time.Unix(1, 0).UTC()

// CookieManager builds Set-Cookie values and buffers them until Flush.
// Several writes to the same cookie in one request collapse into the last one.
// A CookieManager belongs to a single request.
type CookieManager struct {
	storage  CookieStorage
	secure   bool
	httpOnly bool
	sameSite string
	pending  []pendingCookie
}

type pendingCookie struct {
	name string
	raw  string
}

// CookieOption customizes the attributes appended to every cookie
type CookieOption func(*CookieManager)

// WithSecureCookies appends the Secure attribute
func WithSecureCookies(secure bool) CookieOption {
	return func(cm *CookieManager) {
		cm.secure = secure
	}
}

// WithHTTPOnlyCookies appends the HttpOnly attribute
func WithHTTPOnlyCookies(httpOnly bool) CookieOption {
	return func(cm *CookieManager) {
		cm.httpOnly = httpOnly
	}
}

// WithSameSite appends SameSite=<mode>, one of Lax, Strict or None
func WithSameSite(mode string) CookieOption {
	return func(cm *CookieManager) {
		cm.sameSite = mode
	}
}

// NewCookieManager wraps storage. Values are not validated: callers must not
// pass ';' or control characters.
func NewCookieManager(storage CookieStorage, opts ...CookieOption) *CookieManager {
	cm := &CookieManager{storage: storage}
	for _, opt := range opts {
		if opt != nil {
			opt(cm)
		}
	}
	return cm
}

// AddCookieConfig queues name=value. A nil expires makes a session cookie.
func (cm *CookieManager) AddCookieConfig(name, value string, expires *time.Time) {
	cm.queue(name, cm.Format(name, value, expires))
}

// AddClearCookieConfig queues a cookie that forces the client to drop name
func (cm *CookieManager) AddClearCookieConfig(name string) {
	cm.AddCookieConfig(name, ClearedCookieValue, &clearedCookieExpiry)
}

// GetCookie reads a request cookie from storage
func (cm *CookieManager) GetCookie(name string) (string, bool) {
	if cm.storage == nil {
		return "", false
	}
	return cm.storage.GetCookie(name)
}

// Pending returns the queued raw cookie strings in write order
func (cm *CookieManager) Pending() []string {
	out := make([]string, 0, len(cm.pending))
	for _, p := range cm.pending {
		out = append(out, p.raw)
	}
	return out
}

// Flush hands every queued cookie to storage and empties the buffer
func (cm *CookieManager) Flush() {
	if cm.storage != nil {
		for _, p := range cm.pending {
			cm.storage.StoreCookie(p.raw)
		}
	}
	cm.pending = cm.pending[:0]
}

// Format renders the wire value: name=value;path=/[;expires=<GMT date>]
func (cm *CookieManager) Format(name, value string, expires *time.Time) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteString(";path=/")
	if expires != nil {
		b.WriteString(";expires=")
		b.WriteString(expires.UTC().Format(http.TimeFormat))
	}
	if cm.secure {
		b.WriteString(";Secure")
	}
	if cm.httpOnly {
		b.WriteString(";HttpOnly")
	}
	if cm.sameSite != "" {
		b.WriteString(";SameSite=")
		b.WriteString(cm.sameSite)
	}
	return b.String()
}

func (cm *CookieManager) queue(name, raw string) {
	for i, p := range cm.pending {
		if p.name == name {
			cm.pending = append(cm.pending[:i], cm.pending[i+1:]...)
			break
		}
	}
	cm.pending = append(cm.pending, pendingCookie{name: name, raw: raw})
}

// MemoryCookieStorage keeps cookies in maps. Request cookies are read from
// Incoming, stored cookies are appended to Stored.
type MemoryCookieStorage struct {
	Incoming map[string]string
	Stored   []string
}

// NewMemoryCookieStorage returns storage seeded with request cookies
func NewMemoryCookieStorage(incoming map[string]string) *MemoryCookieStorage {
	if incoming == nil {
		incoming = map[string]string{}
	}
	return &MemoryCookieStorage{Incoming: incoming}
}

func (m *MemoryCookieStorage) GetCookie(name string) (string, bool) {
	v, ok := m.Incoming[name]
	return v, ok
}

func (m *MemoryCookieStorage) StoreCookie(raw string) {
	m.Stored = append(m.Stored, raw)
}

// Last returns the value of the most recent stored cookie named name
func (m *MemoryCookieStorage) Last(name string) (string, bool) {
	prefix := name + "="
	for i := len(m.Stored) - 1; i >= 0; i-- {
		raw := m.Stored[i]
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		value := strings.TrimPrefix(raw, prefix)
		if idx := strings.IndexByte(value, ';'); idx >= 0 {
			value = value[:idx]
		}
		return value, true
	}
	return "", false
}
