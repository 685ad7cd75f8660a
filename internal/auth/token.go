// Package auth issues and verifies the signed access tokens handed out at
// login.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kirinyoku/tixbook/internal/domain"
)

var ErrInvalidToken = fmt.Errorf("invalid token: %w", domain.ErrUnauthenticated)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a user ID.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}

	return id, nil
}

// TTL is how long the token stays valid after now.
func (c *Claims) TTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}

	return c.ExpiresAt.Sub(now)
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// Issue signs a token for u and returns it with its expiry.
func (i *Issuer) Issue(u *domain.User) (string, time.Time, error) {
	const op = "auth.Issuer.Issue"

	now := i.now()
	exp := now.Add(i.ttl)

	claims := Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// Parse verifies raw and returns its claims. Any failure, including an
// expired token, is reported as ErrInvalidToken.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return nil, ErrInvalidToken
	}

	if claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}
