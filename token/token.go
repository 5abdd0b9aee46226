// Package token decodes session tokens into typed claims.
//
// Decoding is local: no network round trip is needed to restore a session.
// Signatures are only checked when a key function is configured (for example
// a JWKS key source); otherwise the payload is read as-is, like a browser
// client would, and the server remains the authority on validity.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chimerakang/changedesk"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed is returned when the token cannot be parsed.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned when the embedded expiry is at or before now.
	ErrExpired = errors.New("token expired")
	// ErrMissingClaim is returned when a required claim is absent or empty.
	ErrMissingClaim = errors.New("missing claim")
)

// Claims is the decoded payload of a session token.
type Claims struct {
	jwt.RegisteredClaims

	UserID   int64           `json:"id"`
	Username string          `json:"username"`
	Role     changedesk.Role `json:"role"`
	FullName string          `json:"fullName,omitempty"`
}

// Identity projects the claims into an Identity.
func (c *Claims) Identity() changedesk.Identity {
	name := c.FullName
	if name == "" {
		name = c.Username
	}
	id := changedesk.Identity{
		ID:          c.UserID,
		Username:    c.Username,
		Role:        c.Role,
		DisplayName: name,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

// validate fails closed on any missing required field.
func (c *Claims) validate() error {
	switch {
	case c.ExpiresAt == nil:
		return fmt.Errorf("%w: exp", ErrMissingClaim)
	case c.UserID <= 0:
		return fmt.Errorf("%w: id", ErrMissingClaim)
	case c.Username == "":
		return fmt.Errorf("%w: username", ErrMissingClaim)
	case c.Role == "":
		return fmt.Errorf("%w: role", ErrMissingClaim)
	}
	return nil
}

// KeyfuncSource provides signing keys for verification.
// Implementations: jwks.Verifier.
type KeyfuncSource interface {
	Keyfunc(ctx context.Context) jwt.Keyfunc
}

// Decoder turns raw token strings into validated claims.
type Decoder struct {
	keys    KeyfuncSource
	now     func() time.Time
	methods []string
}

// Option configures the Decoder.
type Option func(*Decoder)

// WithKeySource enables signature verification using the given key source.
func WithKeySource(k KeyfuncSource) Option {
	return func(d *Decoder) { d.keys = k }
}

// WithClock sets the time source used for the expiry check.
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

// WithValidMethods restricts the accepted signing algorithms when verifying.
// Default: HS256 and RS256.
func WithValidMethods(methods ...string) Option {
	return func(d *Decoder) { d.methods = methods }
}

// NewDecoder creates a decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		now:     time.Now,
		methods: []string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodRS256.Alg()},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decode parses raw and returns its claims. The token is rejected when it is
// malformed, lacks a required claim, or its expiry is at or before now.
func (d *Decoder) Decode(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("changedesk/token: %w: empty", ErrMalformed)
	}

	claims := &Claims{}
	var err error
	if d.keys != nil {
		parser := jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithValidMethods(d.methods))
		_, err = parser.ParseWithClaims(raw, claims, d.keys.Keyfunc(ctx))
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(raw, claims)
	}
	if err != nil {
		return nil, fmt.Errorf("changedesk/token: %w: %v", ErrMalformed, err)
	}

	if err := claims.validate(); err != nil {
		return nil, fmt.Errorf("changedesk/token: %w", err)
	}
	if !d.now().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("changedesk/token: %w at %s", ErrExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return claims, nil
}

// Expired reports whether an expiry time is at or before now.
func (d *Decoder) Expired(exp time.Time) bool {
	return !exp.IsZero() && !d.now().Before(exp)
}
