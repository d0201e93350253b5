package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerify_IDClaimShapes(t *testing.T) {
	v := NewVerifier(secret)
	exp := time.Now().Add(time.Hour).Unix()

	p, err := v.Verify(sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": 42, "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, "42", p.UserID)

	p, err = v.Verify(sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": "u-7", "email": "a@b.c", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u-7", Email: "a@b.c"}, p)

	_, err = v.Verify(sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"exp": exp}))
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerify_Rejects(t *testing.T) {
	v := NewVerifier(secret)

	_, err := v.Verify(sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"id": 1}))
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = v.Verify(sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": 1, "exp": time.Now().Add(-time.Minute).Unix()}))
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = v.Verify(sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"id": 1}))
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = v.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(secret)
	var seen Principal
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/cart/items", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer "))
	assert.Equal(t, http.StatusUnauthorized, do("Basic abc"))
	assert.Equal(t, http.StatusForbidden, do("Bearer garbage"))

	expired := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": 5, "exp": time.Now().Add(-time.Hour).Unix()})
	assert.Equal(t, http.StatusForbidden, do("Bearer "+expired))

	good := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": 5})
	assert.Equal(t, http.StatusNoContent, do("bearer "+good))
	assert.Equal(t, "5", seen.UserID)
}
