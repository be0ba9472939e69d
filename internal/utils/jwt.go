// Package utils holds small helpers shared by the server and its tools.
package utils

import (
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// NewAccessToken signs an HS256 JWT whose subject is the buyer id.  The
// service only verifies tokens; issuing them belongs to the identity
// provider, so this is used by tests and the devtoken tool.
func NewAccessToken(secret, subject, role string, ttl time.Duration) (AccessToken, error) {
    if subject == "" {
        return AccessToken{}, errors.New("utils.NewAccessToken: empty subject")
    }
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "sub":  subject,
        "role": role,
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}
