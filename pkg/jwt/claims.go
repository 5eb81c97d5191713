package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMissingUserID is returned for tokens that carry no caller identity
var ErrMissingUserID = errors.New("token has no user_id")

// Claims identifies the caller of the indexing API. Role selects the
// recovery scope: the service role acts for every user.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims checks during parsing
func (c *Claims) Validate() error {
	if c.UserID == uuid.Nil {
		return ErrMissingUserID
	}
	return nil
}

// HasRole reports whether the token carries role. An empty role never matches.
func (c *Claims) HasRole(role string) bool {
	return role != "" && c.Role == role
}
