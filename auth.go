package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

var ErrBadToken = errors.New("invalid join token")

// Auth signs and checks join tokens. A nil *Auth accepts every join.
type Auth struct {
	secret []byte
	clock  Clock
}

// NewAuth returns nil when secret is empty, which leaves joins open
func NewAuth(secret string, clock Clock) *Auth {
	if secret == "" {
		return nil
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Auth{secret: []byte(secret), clock: clock}
}

// IssueToken signs a token whose subject is the player id
func (a *Auth) IssueToken(playerID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := a.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   playerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// VerifyJoin checks that token is valid and was issued for playerID
func (a *Auth) VerifyJoin(token, playerID string) error {
	if a == nil {
		return nil
	}
	if token == "" {
		return fmt.Errorf("%w: missing", ErrBadToken)
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if claims.Subject != playerID {
		return fmt.Errorf("%w: issued for %q", ErrBadToken, claims.Subject)
	}
	return nil
}
