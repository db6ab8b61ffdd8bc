package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mbeoliero/carechat/pkg/errcode"
)

// Claims represents the JWT claims the chat backend issues
type Claims struct {
	UserId string `json:"user_id"`
	jwt.RegisteredClaims
}

// Inspect decodes token claims without verifying the signature. The signing
// secret is backend-owned; the client only needs the subject and expiry to
// fail fast before dialing.
func Inspect(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, errcode.ErrUnauthorized.Wrap(err)
	}
	return claims, nil
}

// CheckExpiry returns ErrTokenExpired when the token's exp claim is in the
// past. Tokens without an exp claim pass.
func CheckExpiry(tokenString string, now time.Time) error {
	claims, err := Inspect(tokenString)
	if err != nil {
		return err
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return errcode.ErrTokenExpired
	}
	return nil
}

// UserIdOf extracts the user id claim, falling back to the registered
// subject when user_id is absent.
func UserIdOf(tokenString string) (string, error) {
	claims, err := Inspect(tokenString)
	if err != nil {
		return "", err
	}
	if claims.UserId != "" {
		return claims.UserId, nil
	}
	return claims.Subject, nil
}
