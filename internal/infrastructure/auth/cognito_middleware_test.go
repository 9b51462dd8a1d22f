package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cognitoFixture struct {
	key    *rsa.PrivateKey
	issuer string
	mw     *CognitoMiddleware
}

func newCognitoFixture(t *testing.T) *cognitoFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := jwksResponse{Keys: []jwk{{
		Kty: "RSA",
		Kid: "kid-1",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)

	issuer := "https://cognito-idp.eu-west-2.amazonaws.com/pool"
	return &cognitoFixture{key: key, issuer: issuer, mw: newCognitoMiddleware(issuer, srv.URL)}
}

func (f *cognitoFixture) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *cognitoFixture) call(t *testing.T, authHeader string) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/applications", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	called := false
	err := f.mw.Handler(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	return rec, c, called
}

func TestCognitoMiddleware_AcceptsValidToken(t *testing.T) {
	f := newCognitoFixture(t)
	token := f.sign(t, jwt.MapClaims{
		"sub":       "user-1",
		"email":     "officer@example.org",
		"iss":       f.issuer,
		"token_use": "id",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	rec, c, called := f.call(t, "Bearer "+token)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", c.Get(ContextUserID))
	assert.Equal(t, "officer@example.org", c.Get(ContextEmail))
}

func TestCognitoMiddleware_RejectsMissingHeader(t *testing.T) {
	f := newCognitoFixture(t)
	rec, _, called := f.call(t, "")
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCognitoMiddleware_RejectsWrongIssuer(t *testing.T) {
	f := newCognitoFixture(t)
	token := f.sign(t, jwt.MapClaims{
		"sub":       "user-1",
		"iss":       "https://elsewhere.example",
		"token_use": "access",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	rec, _, called := f.call(t, "Bearer "+token)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCognitoMiddleware_RejectsExpiredToken(t *testing.T) {
	f := newCognitoFixture(t)
	token := f.sign(t, jwt.MapClaims{
		"sub":       "user-1",
		"iss":       f.issuer,
		"token_use": "access",
		"exp":       time.Now().Add(-time.Hour).Unix(),
	})

	rec, _, called := f.call(t, "Bearer "+token)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCognitoMiddleware_RejectsUnknownTokenUse(t *testing.T) {
	f := newCognitoFixture(t)
	token := f.sign(t, jwt.MapClaims{
		"sub":       "user-1",
		"iss":       f.issuer,
		"token_use": "refresh",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})

	rec, _, called := f.call(t, "Bearer "+token)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
