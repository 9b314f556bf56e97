// ABOUTME: Client-side bearer token inspection
// ABOUTME: Parses JWT claims unverified to pre-empt calls with an expired session

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the current bearer credential. Implementations may
// read it from memory, a file, or a keychain; an empty string means
// unauthenticated and requests go out without an Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource for a fixed credential.
type StaticToken string

// Token returns the fixed credential.
func (s StaticToken) Token() string { return string(s) }

// TokenExpired reports whether the credential is a JWT whose exp claim has
// passed. The client holds no signing secret, so claims are parsed without
// verification; this is a courtesy pre-check, not a security boundary. The
// server's 401 remains authoritative. Opaque (non-JWT) tokens and tokens
// without an exp claim report false.
func TokenExpired(tokenString string, now time.Time) bool {
	if tokenString == "" {
		return false
	}

	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return false
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Before(now)
}
