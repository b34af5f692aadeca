package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated is returned when no usable credential was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the bearer token payload.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokens builds a token codec. An empty secret disables bearer auth.
func NewTokens(secret string, ttl time.Duration, issuer string) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// TTL is the lifetime of issued tokens.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for p.
func (t *Tokens) Issue(p Principal) (string, error) {
	if len(t.secret) == 0 {
		return "", errors.New("token secret not configured")
	}
	now := time.Now()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns the principal it names.
func (t *Tokens) Parse(raw string) (Principal, error) {
	if len(t.secret) == 0 {
		return Principal{}, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(t.issuer))
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	switch claims.Role {
	case RoleCreator, RoleStaff, RoleSystem:
	default:
		return Principal{}, ErrInvalidToken
	}
	return Principal{ID: claims.Subject, Role: claims.Role}, nil
}
