package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(v *Validator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(v.Middleware())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubjectKey))
	})
	return r
}

func signedToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestMiddlewareValidatesTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := newValidator("https://id.example.com", "agent-api", func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, zerolog.Nop())
	router := newRouter(v)

	valid := signedToken(t, key, jwt.MapClaims{
		"iss": "https://id.example.com", "aud": "agent-api", "sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	wrongIssuer := signedToken(t, key, jwt.MapClaims{
		"iss": "https://evil.example.com", "aud": "agent-api", "exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := signedToken(t, key, jwt.MapClaims{
		"iss": "https://id.example.com", "aud": "agent-api", "exp": time.Now().Add(-time.Hour).Unix(),
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "valid", header: "Bearer " + valid, status: http.StatusOK, body: "user-1"},
		{name: "missing", header: "", status: http.StatusUnauthorized, body: "missing bearer token"},
		{name: "not bearer", header: "Basic abc", status: http.StatusUnauthorized, body: "missing bearer token"},
		{name: "wrong issuer", header: "Bearer " + wrongIssuer, status: http.StatusUnauthorized, body: "invalid token"},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized, body: "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestDisabledValidatorPassesThrough(t *testing.T) {
	v := &Validator{log: zerolog.Nop()}
	assert.True(t, v.Ready())

	w := httptest.NewRecorder()
	newRouter(v).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
