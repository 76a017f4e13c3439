package docsdk

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenExpired = errors.New("sdk: auth token expired")

// tokenExpired inspects the JWT's exp claim without verifying the signature;
// verification is the server's job, the client only wants to avoid sending
// requests it knows will be rejected.
func tokenExpired(token string) (bool, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false, fmt.Errorf("parse auth token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false, fmt.Errorf("read token expiry: %w", err)
	}
	if exp == nil {
		// tokens without expiry are accepted (dev setups)
		return false, nil
	}
	return exp.Before(time.Now()), nil
}
