package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpirySkew is the window before the exp claim within which a token is
// already treated as expired, so a request never leaves with a token
// that dies in flight.
const ExpirySkew = 5 * time.Second

// TokenExpired reports whether an access token should be considered
// expired. The token is decoded without signature verification — this
// is a client-side advisory check only; the server remains the
// authority. A token that cannot be decoded or that carries no exp
// claim is treated as expired.
func TokenExpired(token string, now time.Time) bool {
	if token == "" {
		return true
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return !now.Add(ExpirySkew).Before(exp.Time)
}
