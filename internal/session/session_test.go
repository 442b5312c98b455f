package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTProvider_IssueAndResolve(t *testing.T) {
	p := NewJWTProvider("sid", testSecret)

	token, issued, err := p.Issue(42, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	req.AddCookie(p.Cookie(token, issued))

	sess, err := p.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, sess.ID)
	assert.Equal(t, int64(42), sess.UserID)
	assert.True(t, sess.LoggedIn())
	assert.True(t, issued.ExpiresAt.Equal(sess.ExpiresAt))
}

func TestJWTProvider_Rejects(t *testing.T) {
	p := NewJWTProvider("sid", testSecret)
	other := NewJWTProvider("sid", "ffffffffffffffffffffffffffffffff")

	expiredProvider := NewJWTProvider("sid", testSecret)
	expiredProvider.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiredProvider.Issue(1, time.Hour)
	require.NoError(t, err)

	forged, _, err := other.Issue(1, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{SessionID: "x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{name: "expired", token: expired},
		{name: "wrong secret", token: forged},
		{name: "unsigned", token: unsigned},
		{name: "garbage", token: "not-a-token"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Parse(tc.token)
			assert.ErrorIs(t, err, ErrNotAuthenticated)
		})
	}

	_, err = p.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRequire(t *testing.T) {
	p := NewJWTProvider("sid", testSecret)
	token, issued, err := p.Issue(7, time.Hour)
	require.NoError(t, err)

	var denied error
	deny := func(w http.ResponseWriter, _ *http.Request, err error) {
		denied = err
		w.WriteHeader(http.StatusUnauthorized)
	}

	var seen *Session
	h := Require(p, deny, func(w http.ResponseWriter, r *http.Request, sess *Session) {
		fromCtx, ok := FromContext(r.Context())
		assert.True(t, ok)
		assert.Same(t, sess, fromCtx)
		seen = sess
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, errors.Is(denied, ErrNotAuthenticated))
	assert.Nil(t, seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(p.Cookie(token, issued))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, int64(7), seen.UserID)
}
