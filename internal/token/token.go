// Package token mints and verifies subscription claims: short-lived HS256
// JWTs asserting whether a user currently holds an active subscription.
//
// A claim is self-contained. Verifying it needs only the shared secret and
// the clock, never a store lookup. Checking the claim's user against the
// authenticated session is left to the caller.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is how long a freshly minted claim stays valid.
const DefaultTTL = 24 * time.Hour

var (
	ErrExpired = errors.New("subscription token expired")
	ErrInvalid = errors.New("invalid subscription token")
)

// Claims is the decoded form of a subscription claim.
type Claims struct {
	UserID                string    `json:"user_id"`
	HasActiveSubscription bool      `json:"has_active_subscription"`
	ExpiresAt             time.Time `json:"-"`
}

type jwtClaims struct {
	UserID                string `json:"user_id"`
	HasActiveSubscription bool   `json:"has_active_subscription"`
	jwt.RegisteredClaims
}

// Codec signs and checks subscription claims with a single shared secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock replaces the wall clock used for minting and verification.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		c.ttl = ttl
	}
}

// NewCodec returns a Codec for secret. An empty secret is an error.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret not configured")
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mint signs a claim for userID that expires TTL from now.
func (c *Codec) Mint(userID string, hasActiveSubscription bool) (string, error) {
	const op = "token.Mint"
	if userID == "" {
		return "", fmt.Errorf("%s: empty user id", op)
	}
	now := c.now()
	claims := jwtClaims{
		UserID:                userID,
		HasActiveSubscription: hasActiveSubscription,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the embedded claim.
func (c *Codec) Verify(raw string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid || claims.UserID == "" || claims.ExpiresAt == nil {
		return Claims{}, ErrInvalid
	}
	return Claims{
		UserID:                claims.UserID,
		HasActiveSubscription: claims.HasActiveSubscription,
		ExpiresAt:             claims.ExpiresAt.Time,
	}, nil
}

// MaxAge is the cookie lifetime matching the claim TTL.
func (c *Codec) MaxAge() int {
	return int(c.ttl / time.Second)
}
