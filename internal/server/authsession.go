package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/oklog/ulid/v2"
)

const authCookieName = "chat_session"

// authSession is one logged-in browser session.
type authSession struct {
	token    string
	userID   int64
	username string
}

// sessionManager tracks cookie sessions in memory. Losing them on
// restart just forces a re-login.
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*authSession
}

func newSessionManager() *sessionManager {
	return &sessionManager{sessions: make(map[string]*authSession)}
}

// Create issues a new cookie session for the user.
func (m *sessionManager) Create(w http.ResponseWriter, userID int64, username string) *authSession {
	sess := &authSession{
		token:    ulid.Make().String(),
		userID:   userID,
		username: username,
	}
	m.mu.Lock()
	m.sessions[sess.token] = sess
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    sess.token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// FromRequest resolves the cookie session, if any.
func (m *sessionManager) FromRequest(r *http.Request) (*authSession, bool) {
	c, err := r.Cookie(authCookieName)
	if err != nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[c.Value]
	return sess, ok
}

// Destroy drops the session and expires the cookie.
func (m *sessionManager) Destroy(w http.ResponseWriter, r *http.Request) (*authSession, bool) {
	c, err := r.Cookie(authCookieName)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	sess, ok := m.sessions[c.Value]
	delete(m.sessions, c.Value)
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return sess, ok
}

type contextKey string

const contextKeyAuth contextKey = "authSession"

// requireAuth rejects requests without a valid cookie session and puts
// the session on the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.auth.FromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "login required")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyAuth, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authFrom returns the session placed on the context by requireAuth.
func authFrom(ctx context.Context) *authSession {
	sess, _ := ctx.Value(contextKeyAuth).(*authSession)
	return sess
}
