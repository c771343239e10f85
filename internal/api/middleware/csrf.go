package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	csrfTokenLength   = 32
	csrfHeaderName    = "X-CSRF-Token"
	csrfFormField     = "csrf_token"
	sessionTTL        = 24 * time.Hour
	SessionCookieName = "reconsole_session"
)

const sessionIDKey ctxKey = iota + 1

type sessionToken struct {
	value   string
	expires time.Time
}

// CSRFStore keeps one token per browser session, in memory. Tokens live as
// long as the session cookie.
type CSRFStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionToken
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

func NewCSRFStore() *CSRFStore {
	s := &CSRFStore{
		sessions: make(map[string]sessionToken),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go s.sweep(time.Hour)
	return s
}

func (s *CSRFStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *CSRFStore) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.expire()
		}
	}
}

func (s *CSRFStore) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now()
	for id, tok := range s.sessions {
		if !tok.expires.After(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// GetOrCreate returns the session's live token, minting one if needed.
func (s *CSRFStore) GetOrCreate(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if tok, ok := s.sessions[sessionID]; ok && tok.expires.After(now) {
		return tok.value
	}

	tok := sessionToken{value: newToken(), expires: now.Add(sessionTTL)}
	s.sessions[sessionID] = tok
	return tok.value
}

// Validate reports whether provided is the session's unexpired token.
func (s *CSRFStore) Validate(sessionID, provided string) bool {
	s.mu.RLock()
	tok, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok || !tok.expires.After(s.now()) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(tok.value), []byte(provided)) == 1
}

func newToken() string {
	b := make([]byte, csrfTokenLength)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// CSRF issues a session cookie on safe requests and requires the session's
// token, in the X-CSRF-Token header or the csrf_token form field, on all
// others.
func CSRF(store *CSRFStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := sessionFromCookie(r)

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				if sessionID == "" {
					sessionID = uuid.NewString()
					http.SetCookie(w, &http.Cookie{
						Name:     SessionCookieName,
						Value:    sessionID,
						Path:     "/",
						HttpOnly: true,
						Secure:   r.TLS != nil,
						SameSite: http.SameSiteStrictMode,
						MaxAge:   int(sessionTTL.Seconds()),
					})
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionIDKey, sessionID)))
				return
			}

			if sessionID == "" {
				http.Error(w, "Session required", http.StatusForbidden)
				return
			}

			provided := r.Header.Get(csrfHeaderName)
			if provided == "" {
				provided = r.FormValue(csrfFormField)
			}
			if provided == "" {
				http.Error(w, "CSRF token missing", http.StatusForbidden)
				return
			}
			if !store.Validate(sessionID, provided) {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionIDKey, sessionID)))
		})
	}
}

func sessionFromCookie(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// GetCSRFToken returns the token for the request's session, for templates.
func GetCSRFToken(r *http.Request, store *CSRFStore) string {
	sessionID, _ := r.Context().Value(sessionIDKey).(string)
	if sessionID == "" {
		sessionID = sessionFromCookie(r)
	}
	if sessionID == "" {
		return ""
	}
	return store.GetOrCreate(sessionID)
}
