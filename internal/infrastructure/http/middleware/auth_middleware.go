package middleware

import (
	stdErrors "errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/johnquangdev/transcript-indexer/errors"
	"github.com/johnquangdev/transcript-indexer/pkg/jwt"
)

// Echo context keys set by EchoAuth
const (
	UserIDKey = "user_id"
	ClaimsKey = "claims"
)

// EchoAuth returns an Echo middleware that validates the bearer JWT and sets
// "user_id" (uuid.UUID) and "claims" (*jwt.Claims) into the Echo context
func EchoAuth(jwtManager *jwt.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c.Request())
			if token == "" {
				return errors.ErrUnauthenticated()
			}

			claims, err := jwtManager.ValidateAccessToken(token)
			if err != nil {
				if stdErrors.Is(err, jwt.ErrExpired) {
					return errors.ErrTokenExpired()
				}
				return errors.ErrInvalidToken().WithDetail("reason", err.Error())
			}

			c.Set(UserIDKey, claims.UserID)
			c.Set(ClaimsKey, claims)

			return next(c)
		}
	}
}

// GetUserID returns the authenticated user id
func GetUserID(c echo.Context) (uuid.UUID, bool) {
	userID, ok := c.Get(UserIDKey).(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}

// HasRole reports whether the authenticated caller carries role
func HasRole(c echo.Context, role string) bool {
	claims, ok := c.Get(ClaimsKey).(*jwt.Claims)
	return ok && claims.HasRole(role)
}

func extractToken(r *http.Request) string {
	// Try Authorization header first
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
	}

	// Try cookie as fallback
	cookie, err := r.Cookie("access_token")
	if err == nil {
		return cookie.Value
	}

	return ""
}
