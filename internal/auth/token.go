package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of an HS256 bearer token issued by the admin login.
type Claims struct {
	Sub      int64
	Username string
	Role     string
	Iat      int64
	Exp      int64
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// wireClaims carries sub as a number, the way the admin login issues it.
type wireClaims struct {
	Sub      int64            `json:"sub"`
	Username string           `json:"username"`
	Role     string           `json:"role,omitempty"`
	Iat      *jwt.NumericDate `json:"iat,omitempty"`
	Exp      *jwt.NumericDate `json:"exp,omitempty"`
}

func (c wireClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.Exp, nil }
func (c wireClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.Iat, nil }
func (c wireClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c wireClaims) GetIssuer() (string, error)                   { return "", nil }
func (c wireClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }
func (c wireClaims) GetSubject() (string, error) {
	return strconv.FormatInt(c.Sub, 10), nil
}

func IssueToken(secret []byte, claims Claims) (string, error) {
	wire := wireClaims{Sub: claims.Sub, Username: claims.Username, Role: claims.Role}
	if claims.Iat != 0 {
		wire.Iat = jwt.NewNumericDate(time.Unix(claims.Iat, 0))
	}
	if claims.Exp != 0 {
		wire.Exp = jwt.NewNumericDate(time.Unix(claims.Exp, 0))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies the signature and expiry of a compact HS256 token.
func ParseToken(secret []byte, token string, now time.Time) (Claims, error) {
	var wire wireClaims
	_, err := jwt.ParseWithClaims(token, &wire, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Claims{}, ErrExpiredToken
	}
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if wire.Sub == 0 || wire.Username == "" {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{Sub: wire.Sub, Username: wire.Username, Role: wire.Role, Exp: wire.Exp.Unix()}
	if wire.Iat != nil {
		claims.Iat = wire.Iat.Unix()
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(authorization string) (string, bool) {
	const prefix = "Bearer "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(prefix):])
	return token, token != ""
}
