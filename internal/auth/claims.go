// Package auth inspects the bearer credential handed to the chat client.
//
// The client never verifies signatures: the broker and the REST backend are
// authoritative. Claims are read only for client-side decisions such as which
// inbound messages belong to the local user.
package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the backend token payload used by the client.
type Claims struct {
	// UserID is the backend's numeric user id claim, when present.
	UserID any `json:"userId,omitempty"`
	// AltID is the "id" spelling some token issuers use.
	AltID any `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes token without verifying its signature.
func ParseClaims(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("token is empty")
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return claims, nil
}

// LocalUserID returns the numeric user id carried by the claims. It tries the
// userId claim, then id, then a numeric subject.
func (c *Claims) LocalUserID() (int64, bool) {
	if c == nil {
		return 0, false
	}
	for _, raw := range []any{c.UserID, c.AltID, c.Subject} {
		if id, ok := asInt64(raw); ok && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// ExpiresWithin reports whether the token is expired or will expire within
// window of now. Tokens without an exp claim never expire.
func (c *Claims) ExpiresWithin(now time.Time, window time.Duration) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Time.Sub(now) <= window
}

func asInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), v == float64(int64(v))
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}
