package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AdminSubject is the token subject allowed to run maintenance endpoints.
// It can never be a wishlist id, which is hex.
const AdminSubject = "admin"

const tokenIssuer = "wishlist"

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs short-lived HS256 tokens that stand in for the list
// password. The subject is the wishlist id.
type TokenIssuer struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenIssuer creates an issuer. ttl <= 0 falls back to 12 hours.
func NewTokenIssuer(secretKey string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{secretKey: []byte(secretKey), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for subject and its expiry.
func (j *TokenIssuer) Issue(subject string) (string, time.Time, error) {
	now := j.now()
	expiry := now.Add(j.ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiry, nil
}

// Validate checks signature, issuer and expiry and returns the subject.
func (j *TokenIssuer) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.ExpiresAt == nil || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
