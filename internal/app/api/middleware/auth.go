package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"
)

const (
	ctxUserID = "userID"
	ctxRole   = "role"

	RoleAdmin = "admin"
)

var errMissingSecret = errors.New("auth secret not configured")

// Claims carries the acting user. Subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.StandardClaims
}

// IssueToken signs an HS256 token for userID.
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errMissingSecret
	}
	now := time.Now()
	claims := &Claims{
		Role: role,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, raw string) (*Claims, error) {
	if secret == "" {
		return nil, errMissingSecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Auth requires a valid bearer token and stores the acting user on the
// request. An empty secret rejects every request.
func Auth(secret string, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorMsg(response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := parseToken(secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			logctx.FromGin(c, base).Infow("auth_rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorMsg(response.APIResponseCodeUnauthorized, "invalid token"))
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxRole, claims.Role)
		ctx := context.WithValue(c.Request.Context(), logctx.UserIDKey, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		setRequestLogger(c, logctx.FromGin(c, base).With("user_id", claims.Subject))
		c.Next()
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorT[any](response.APIResponseCodeForbidden, nil))
			return
		}
		c.Next()
	}
}

// GetUserID returns the acting user set by Auth, or "".
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
