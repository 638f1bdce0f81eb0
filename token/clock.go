package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeadTime is how long before expiry a token is considered stale.
const DefaultLeadTime = 30 * time.Second

// ErrMalformed is returned when an access token cannot be decoded or lacks an expiry.
var ErrMalformed = errors.New("malformed access token")

// Claims holds the parts of an access token the client cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Decode extracts the claims of a JWT without verifying its signature.
// The client only needs the expiry to schedule refreshes; the server stays the authority.
func Decode(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &registered); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if registered.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}

	claims := Claims{
		Subject:   registered.Subject,
		ExpiresAt: registered.ExpiresAt.Time,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	return claims, nil
}

// Clock answers staleness questions about access tokens.
type Clock struct {
	Lead time.Duration
	Now  func() time.Time
}

// NewClock returns a Clock using the wall clock. A non-positive lead falls back to DefaultLeadTime.
func NewClock(lead time.Duration) *Clock {
	if lead <= 0 {
		lead = DefaultLeadTime
	}
	return &Clock{Lead: lead, Now: time.Now}
}

// Remaining reports how long the token stays valid, which is negative once it has expired.
func (c *Clock) Remaining(raw string) (time.Duration, error) {
	claims, err := Decode(raw)
	if err != nil {
		return 0, err
	}
	return claims.ExpiresAt.Sub(c.now()), nil
}

// IsStale reports whether the token expires within the lead time.
// Tokens that cannot be decoded are always stale.
func (c *Clock) IsStale(raw string) bool {
	remaining, err := c.Remaining(raw)
	if err != nil {
		return true
	}
	return remaining <= c.Lead
}

func (c *Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
