// Package auth verifies the signed session tokens clients present when
// opening a gateway connection. Tokens are issued by the surrounding
// application at login; the gateway only checks them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrExpiredToken = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSigningKey = errors.New("no signing key configured")
)

type Authenticator struct {
	signingKey []byte
}

func NewAuthenticator(signingKey []byte) *Authenticator {
	return &Authenticator{signingKey: signingKey}
}

// Verify checks the token's signature and expiry and returns the user
// id it carries. Every failure maps to one of the package sentinel
// errors so callers can distinguish an expired token from a forged one.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	if len(a.signingKey) == 0 {
		return "", ErrNoSigningKey
	}
	if tokenString == "" {
		return "", ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("%w: missing user id claim", ErrInvalidToken)
	}

	return userId, nil
}

// NewSessionToken issues a signed session token for userId, valid for
// the given duration.
func (a *Authenticator) NewSessionToken(userId string, exp time.Duration) (string, error) {
	if len(a.signingKey) == 0 {
		return "", ErrNoSigningKey
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(a.signingKey)
}
