package auth

import (
	"errors"
	"fmt"
	"time"

	"livesession/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access token fields the client cares about.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Inspector reads access tokens without verifying their signature; the
// session server does the verification.
type Inspector struct {
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewInspector(leeway time.Duration) *Inspector {
	return &Inspector{
		leeway: leeway,
		now:    time.Now,
		parser: jwt.NewParser(),
	}
}

// Inspect returns the claims of a JWT. Opaque tokens yield nil claims and no
// error.
func (i *Inspector) Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := i.parser.ParseUnverified(token, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to inspect token: %w", err)
	}
	return claims, nil
}

// Check rejects tokens that expire within the leeway.
func (i *Inspector) Check(token string) (*Claims, error) {
	claims, err := i.Inspect(token)
	if err != nil || claims == nil {
		return claims, err
	}
	if exp := claims.ExpiresAt; exp != nil && !i.now().Add(i.leeway).Before(exp.Time) {
		return claims, fmt.Errorf("token for %q expired at %s: %w", subject(claims), exp.Time.Format(time.RFC3339), domain.ErrTokenExpired)
	}
	return claims, nil
}

// ExpiresAt returns the expiry of a JWT, or the zero time when it has none.
func (i *Inspector) ExpiresAt(token string) time.Time {
	claims, err := i.Inspect(token)
	if err != nil || claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func subject(c *Claims) string {
	if c.Subject != "" {
		return c.Subject
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Username
}
