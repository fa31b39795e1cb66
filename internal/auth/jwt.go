package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the user a credential speaks for.
type Identity struct {
	ID       string `json:"_id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Claims represents the JWT payload issued by the authority.
type Claims struct {
	UserID   string `json:"_id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the identity carried by the claims.
func (c Claims) Identity() Identity {
	return Identity{ID: c.UserID, Username: c.Username, Name: c.Name}
}

// Expiry returns the expiration instant, or the zero time when absent.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether the credential is no longer valid at now.
func (c Claims) Expired(now time.Time) bool {
	return !now.Before(c.Expiry())
}

// Decode parses a token into claims without verifying its signature.
// The authority that issued the token is the trust boundary.
func Decode(token string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if claims.UserID == "" {
		return Claims{}, fmt.Errorf("%w: missing identity", ErrMalformedCredential)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing expiry", ErrMalformedCredential)
	}
	return claims, nil
}

// Issue signs a token for the identity that expires after ttl.
func Issue(id Identity, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:   id.ID,
		Username: id.Username,
		Name:     id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	return *claims, nil
}

// Credentials are what a user presents to log in.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Profile is what a user presents to register.
type Profile struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}
