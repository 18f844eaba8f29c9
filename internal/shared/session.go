package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "backoffice:session:"

// SessionManager keeps cookie sessions in Redis under backoffice:session:<id>.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session is the per-request view of a stored session. Only the user id is
// authoritative; role and store assignment are looked up on every request.
type Session struct {
	ID string

	state     sessionState
	stored    bool
	dirty     bool
	destroyed bool
}

type sessionState struct {
	Values map[string]string `json:"values"`
	UserID int64             `json:"user_id"`
}

func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{client: client, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Load returns the session named by the request cookie. Missing, malformed or
// expired cookies yield a fresh anonymous session.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	switch {
	case errors.Is(err, http.ErrNoCookie):
		return fresh(), nil
	case err != nil:
		return nil, err
	}
	if uuid.Validate(cookie.Value) != nil {
		return fresh(), nil
	}

	raw, err := sm.client.Get(ctx, sessionKeyPrefix+cookie.Value).Bytes()
	if errors.Is(err, redis.Nil) {
		return fresh(), nil
	}
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: cookie.Value, stored: true}
	if err := json.Unmarshal(raw, &sess.state); err != nil {
		return nil, err
	}
	return sess, nil
}

// Commit flushes pending changes to Redis and the response cookies.
// Sessions that were never written stay anonymous and leave no trace.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.destroyed {
		if err := sm.forget(ctx, sess.ID); err != nil {
			return err
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}
	if !sess.dirty {
		return nil
	}

	raw, err := json.Marshal(sess.state)
	if err != nil {
		return err
	}
	if err := sm.client.Set(ctx, sessionKeyPrefix+sess.ID, raw, sm.ttl).Err(); err != nil {
		return err
	}
	sess.stored, sess.dirty = true, false
	http.SetCookie(w, sm.cookie(sess.ID, int(sm.ttl/time.Second)))
	return nil
}

// Destroy marks the session for removal on the next Commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.destroyed = true
	}
}

// Renew moves the session to a new id and drops its CSRF token. Called on login.
func (sm *SessionManager) Renew(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.stored {
		if err := sm.forget(ctx, sess.ID); err != nil {
			return err
		}
	}
	sess.ID = uuid.NewString()
	sess.stored = false
	sess.dirty = true
	delete(sess.state.Values, CSRFSessionKey)
	return nil
}

func (sm *SessionManager) TTL() time.Duration { return sm.ttl }

func (sm *SessionManager) forget(ctx context.Context, id string) error {
	err := sm.client.Del(ctx, sessionKeyPrefix+id).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func fresh() *Session {
	return &Session{ID: uuid.NewString()}
}

func (s *Session) Set(key, value string) {
	if s.state.Values == nil {
		s.state.Values = make(map[string]string)
	}
	s.state.Values[key] = value
	s.dirty = true
}

func (s *Session) Get(key string) string {
	return s.state.Values[key]
}

// SetUser binds the session to a user id.
func (s *Session) SetUser(id int64) {
	s.state.UserID = id
	s.dirty = true
}

// User is zero for anonymous sessions.
func (s *Session) User() int64 {
	return s.state.UserID
}

type sessionContextKey struct{}

func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}
