package fiberauth

import (
	"context"
	"encoding/gob"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	auth "github.com/goliatone/go-account"
	"github.com/valyala/fasthttp"
)

func init() {
	// session values are gob encoded by the fiber session store
	gob.Register(auth.SessionData{})
	gob.Register(map[string]any{})
}

var _ auth.CookieStorage = (*CookieStorage)(nil)

// CookieStorage reads request cookies and writes Set-Cookie headers on a
// fiber context.
type CookieStorage struct {
	c *fiber.Ctx
}

// NewCookieStorage wraps c
func NewCookieStorage(c *fiber.Ctx) *CookieStorage {
	return &CookieStorage{c: c}
}

func (s *CookieStorage) GetCookie(name string) (string, bool) {
	v := s.c.Cookies(name)
	return v, v != ""
}

// StoreCookie parses raw into a fasthttp cookie so repeated names replace
// each other in the response. Unparseable values are sent as is.
func (s *CookieStorage) StoreCookie(raw string) {
	ck := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(ck)

	if err := ck.Parse(raw); err != nil {
		s.c.Response().Header.Add(fiber.HeaderSetCookie, raw)
		return
	}
	s.c.Response().Header.SetCookie(ck)
}

var (
	_ auth.Session            = (*Session)(nil)
	_ auth.SessionCommitter   = (*Session)(nil)
	_ auth.SessionRegenerator = (*Session)(nil)
)

// Session adapts a fiber session. Writes reach the store on Commit.
type Session struct {
	sess       *session.Session
	dirty      bool
	destroyed  bool
	destroyErr error
}

// NewSession wraps sess
func NewSession(sess *session.Session) *Session {
	return &Session{sess: sess}
}

// ID returns the fiber session id
func (s *Session) ID() string {
	return s.sess.ID()
}

func (s *Session) Get(key string) (any, bool) {
	v := s.sess.Get(key)
	return v, v != nil
}

func (s *Session) Put(key string, value any) {
	s.sess.Set(key, value)
	s.dirty = true
}

func (s *Session) Remove(key string) {
	s.sess.Delete(key)
	s.dirty = true
}

func (s *Session) Destroy() {
	s.destroyErr = s.sess.Destroy()
	s.destroyed = true
	s.dirty = false
}

// Regenerate moves the session to a new id. The old id is removed from
// the store and the new one is sent on Commit.
func (s *Session) Regenerate() error {
	if err := s.sess.Regenerate(); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Commit saves pending writes. A destroyed session with no later writes
// reports the destroy result.
func (s *Session) Commit(context.Context) error {
	if !s.dirty {
		if s.destroyed {
			return s.destroyErr
		}
		return nil
	}
	s.dirty = false
	return s.sess.Save()
}
