// Package middleware holds the gin middleware in front of the API: bearer
// token auth, per-identity rate limiting and HTTP metrics.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"rando/backend/internal/config"
	"rando/backend/internal/errorx"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

// Keys the auth middleware sets on the gin context.
const (
	UserIDKey = "userID"
	GuestKey  = "isGuest"
)

// Claims is the payload of a guest or user token.
type Claims struct {
	UserID  string `json:"anon_id"`
	IsGuest bool   `json:"guest"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: cfg.TTL}
}

// Issue returns a signed token for userID and its expiry.
func (t *TokenIssuer) Issue(userID string, guest bool) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)
	claims := Claims{
		UserID:  userID,
		IsGuest: guest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errorx.Wrap(err, errorx.CodeInternal, "failed to sign token")
	}
	return signed, exp, nil
}

// Parse verifies signature, issuer and expiry.
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errorx.Wrap(err, errorx.CodeUnauthorized, "token expired")
		}
		return nil, errorx.Wrap(err, errorx.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, errorx.New(errorx.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

// bearer reads the token from the Authorization header. Browsers cannot set
// headers on a websocket handshake, so ?token= is accepted too.
func bearer(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return c.Query("token")
}

// Auth rejects requests without a valid token and stores the caller's id
// under UserIDKey.
func Auth(t *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearer(c)
		if tok == "" {
			abort(c, http.StatusUnauthorized, errorx.New(errorx.CodeUnauthorized, "authorization token missing"))
			return
		}
		claims, err := t.Parse(tok)
		if err != nil {
			abort(c, http.StatusUnauthorized, err)
			return
		}
		c.Set(UserIDKey, claims.UserID)
		c.Set(GuestKey, claims.IsGuest)
		c.Next()
	}
}

// UserID returns the authenticated caller, or "" outside Auth.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// IsGuest reports whether the caller holds a guest token.
func IsGuest(c *gin.Context) bool {
	return c.GetBool(GuestKey)
}

func abort(c *gin.Context, status int, err error) {
	var ce *errorx.CodeError
	msg := err.Error()
	if errors.As(err, &ce) {
		msg = ce.Msg
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorx.Slug(err), "message": msg})
}
