package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func echoUID() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(id.UID))
	})
}

func TestJWTResolver(t *testing.T) {
	j := NewJWTResolver("secret", "tepache")
	token, err := j.Sign("u1", time.Minute)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	id, err := j.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UID)
}

func TestJWTResolver_Rejections(t *testing.T) {
	j := NewJWTResolver("secret", "tepache")
	expired, err := j.Sign("u1", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := NewJWTResolver("other", "tepache").Sign("u1", time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := NewJWTResolver("secret", "someone-else").Sign("u1", time.Minute)
	require.NoError(t, err)
	noSubject, err := j.Sign("", time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"basic auth":   "Basic dTE6cGFzcw==",
		"expired":      "Bearer " + expired,
		"wrong key":    "Bearer " + wrongKey,
		"wrong issuer": "Bearer " + wrongIssuer,
		"no subject":   "Bearer " + noSubject,
		"garbage":      "Bearer not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", header)
			_, err := j.Resolve(r)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}

	_, err = j.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestMiddleware(t *testing.T) {
	j := NewJWTResolver("secret", "")
	h := Middleware(j, zaptest.NewLogger(t))(echoUID())
	token, err := j.Sign("u1", time.Minute)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(rec, r)
	assert.Equal(t, "u1", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "anonymous", rec.Body.String())

	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer junk")
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHeaderResolver(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := HeaderResolver{}.Resolve(r)
	assert.ErrorIs(t, err, ErrNoCredentials)

	r.Header.Set(HeaderUID, "dev-user")
	id, err := HeaderResolver{}.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "dev-user", id.UID)
}
