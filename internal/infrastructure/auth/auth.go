// Package auth validates caller bearer tokens against the identity provider's JWKS.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/config"
)

// SubjectKey is the gin context key holding the authenticated subject.
const SubjectKey = "auth_subject"

// Validator validates JWTs using JWKS.
type Validator struct {
	enabled  bool
	issuer   string
	audience string
	keyfunc  jwt.Keyfunc
	log      zerolog.Logger
}

// NewValidator initializes JWKS fetching when auth is enabled.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	if !cfg.AuthEnabled {
		return &Validator{log: log}, nil
	}

	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	}

	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, options)
	if err != nil {
		return nil, err
	}
	return newValidator(cfg.AuthIssuer, cfg.AuthAudience, jwks.Keyfunc, log), nil
}

func newValidator(issuer, audience string, kf jwt.Keyfunc, log zerolog.Logger) *Validator {
	return &Validator{
		enabled:  true,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		keyfunc:  kf,
		log:      log,
	}
}

// Middleware enforces JWT auth when enabled. The Authorization header is left
// untouched so downstream calls can forward it.
func (v *Validator) Middleware() gin.HandlerFunc {
	if v == nil || !v.enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	return func(c *gin.Context) {
		tokenString := bearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		token, err := jwt.Parse(tokenString, v.keyfunc, parserOpts...)
		if err != nil || !token.Valid {
			v.log.Debug().Err(err).Msg("rejected bearer token")
			abortUnauthorized(c, "invalid token")
			return
		}

		if subject, err := token.Claims.GetSubject(); err == nil && subject != "" {
			c.Set(SubjectKey, subject)
		}
		c.Next()
	}
}

// Ready indicates if the validator is prepared.
func (v *Validator) Ready() bool {
	if v == nil || !v.enabled {
		return true
	}
	return v.keyfunc != nil
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.AbortWithStatus(http.StatusUnauthorized)
	_, _ = c.Writer.WriteString(message)
}
