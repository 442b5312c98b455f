// Package session resolves the authenticated session carried by a request.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrNotAuthenticated is returned when a request carries no valid session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Session is the server-side identity of one logged-in browser session.
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

// LoggedIn reports whether the session identifies a user.
func (s *Session) LoggedIn() bool {
	return s != nil && s.ID != "" && s.UserID > 0
}

// TTL returns the remaining lifetime of the session relative to now.
func (s *Session) TTL(now time.Time) time.Duration {
	if s == nil || s.ExpiresAt.IsZero() {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Provider extracts a session from an inbound request.
type Provider interface {
	Resolve(r *http.Request) (*Session, error)
}

// HandlerFunc is an HTTP handler that receives the resolved session explicitly.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, sess *Session)

// DenyFunc answers a request that failed authentication.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Require resolves the session before anything else and calls deny when none is present.
func Require(provider Provider, deny DenyFunc, next HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := provider.Resolve(r)
		if err != nil || !sess.LoggedIn() {
			if err == nil {
				err = ErrNotAuthenticated
			}
			deny(w, r, err)
			return
		}

		next(w, r.WithContext(WithSession(r.Context(), sess)), sess)
	})
}

type sessionKey struct{}

// WithSession stores sess in ctx for components that only see the context.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// FromContext retrieves the session from ctx (if any).
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*Session)
	return sess, ok && sess != nil
}
