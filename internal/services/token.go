// Package services contains the bridge's business logic.
package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fitfighter/rigbridge/internal/transport"
)

// RigClaims is the JWT payload minted as an MQTT password. The broker's
// auth plugin validates it; the bridge only ever creates them.
type RigClaims struct {
	RigID string `json:"rig"`
	jwt.RegisteredClaims
}

// TokenService mints short-lived MQTT credentials scoped to one rig.
// A pair is consumed once per connection attempt by the browser client.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given signing secret and
// credential lifetime.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// MintCredentials returns a username/password pair for the rig: the
// username identifies the web client, the password is a signed JWT that
// expires after the configured TTL.
func (s *TokenService) MintCredentials(rigID string) (transport.Credentials, error) {
	if rigID == "" {
		return transport.Credentials{}, errors.New("rig id is required")
	}

	now := time.Now()
	claims := RigClaims{
		RigID: rigID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "rigbridge",
			Subject:   "web-" + rigID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return transport.Credentials{}, err
	}

	return transport.Credentials{
		Username: "web-" + rigID,
		Password: signed,
	}, nil
}

// ValidateToken verifies a minted password's signature and expiry,
// returning the claims if valid. Used by tests and by broker-side tooling
// that shares the secret.
func (s *TokenService) ValidateToken(tokenString string) (*RigClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RigClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*RigClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
