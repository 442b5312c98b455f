package session

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// JWTProvider reads an HS256-signed session token from a cookie.
type JWTProvider struct {
	cookieName string
	secret     []byte
	now        func() time.Time
}

// NewJWTProvider creates a provider for cookieName tokens signed with secret.
func NewJWTProvider(cookieName, secret string) *JWTProvider {
	return &JWTProvider{
		cookieName: cookieName,
		secret:     []byte(secret),
		now:        time.Now,
	}
}

// Resolve validates the session cookie of r.
func (p *JWTProvider) Resolve(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(p.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNotAuthenticated
	}

	return p.Parse(cookie.Value)
}

// Parse validates tokenStr and returns the session it describes.
func (p *JWTProvider) Parse(tokenStr string) (*Session, error) {
	if len(p.secret) == 0 {
		return nil, errors.New("session secret is empty")
	}

	tok, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	c, _ := tok.Claims.(*claims)
	if c == nil || c.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrNotAuthenticated)
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: invalid subject", ErrNotAuthenticated)
	}

	return &Session{
		ID:        c.SessionID,
		UserID:    userID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// Issue signs a new session token for userID valid for ttl.
func (p *JWTProvider) Issue(userID int64, ttl time.Duration) (string, *Session, error) {
	now := p.now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl).Truncate(time.Second),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})

	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	return signed, sess, nil
}

// Cookie wraps token into the session cookie.
func (p *JWTProvider) Cookie(token string, sess *Session) *http.Cookie {
	return &http.Cookie{
		Name:     p.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
