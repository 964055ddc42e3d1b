package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

var (
	errNoAuthHeader = errors.New("missing authorization header")
	errBadToken     = errors.New("malformed bearer token")
)

// Auth resolves user identifiers from JWT bearer tokens, verified against a
// JWKS endpoint. With AUTH0_TEST_MODE=1 verification switches to a shared
// HMAC secret so local runs work without an identity provider.
type Auth struct {
	jwks       *keyfunc.JWKS
	audience   string
	issuer     string
	testSecret []byte
}

// NewAuth creates a token verifier. jwks may be nil in test mode.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{jwks: jwks, audience: audience, issuer: issuer}
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		a.testSecret = []byte(secret)
	}
	return a
}

// UserIDFromAuthHeader verifies the bearer token in the Authorization header
// and returns its subject.
func (a *Auth) UserIDFromAuthHeader(header string) (string, error) {
	tokenStr, err := bearerToken(header)
	if err != nil {
		return "", err
	}
	if a.testSecret != nil {
		return a.subjectFromTestToken(tokenStr)
	}
	return a.subjectFromSignedToken(tokenStr)
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoAuthHeader
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.Count(parts[1], ".") != 2 {
		return "", errBadToken
	}
	return parts[1], nil
}

func (a *Auth) subjectFromSignedToken(tokenStr string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.Parse(tokenStr, a.jwks.Keyfunc)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	now := time.Now().Add(time.Minute).Unix()
	switch {
	case !claims.VerifyExpiresAt(now, true):
		return "", errors.New("token expired")
	case !claims.VerifyNotBefore(now, false):
		return "", errors.New("token not valid yet")
	case !claims.VerifyAudience(a.audience, false):
		return "", errors.New("invalid audience")
	case !claims.VerifyIssuer(a.issuer, false):
		return "", errors.New("invalid issuer")
	}
	return subject(claims)
}

func (a *Auth) subjectFromTestToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.testSecret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	return subject(claims)
}

func subject(claims jwt.MapClaims) (string, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
