// Package auth issues and verifies bearer tokens and hashes account
// passwords.
package auth

import (
	"errors"
	"time"

	"newsdesk/internal/clock"
	"newsdesk/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims holds the registered claims plus the account id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// Tokens signs HS256 access tokens.
type Tokens struct {
	secret   []byte
	validity time.Duration
	clock    clock.Clock
}

func NewTokens(secret string, validity time.Duration, clk clock.Clock) *Tokens {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Tokens{secret: []byte(secret), validity: validity, clock: clk}
}

// Issue returns a signed token for the account.
func (t *Tokens) Issue(id model.AccountID) (string, error) {
	now := t.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.validity)),
		},
		UserID: id.String(),
	})

	return token.SignedString(t.secret)
}

// Verify checks the signature and expiry and returns the account id.
func (t *Tokens) Verify(tokenString string) (model.AccountID, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.AccountID{}, ErrTokenExpired
		}
		return model.AccountID{}, ErrInvalidToken
	}
	if !token.Valid {
		return model.AccountID{}, ErrInvalidToken
	}

	id, err := model.ParseAccountID(claims.UserID)
	if err != nil {
		return model.AccountID{}, ErrInvalidToken
	}
	return id, nil
}
