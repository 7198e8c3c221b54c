package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSubject is returned when an access token carries no subject claim
var ErrNoSubject = errors.New("access token has no subject")

// Subject reads the "sub" claim of a JWT access token without verifying
// the signature. Verification is the social API's job; the client only
// needs the subject to scope per-user cache keys.
func Subject(accessToken string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return claims.Subject, nil
}
