// Package auth authenticates users: it issues and checks bearer tokens, verifies passwords
// and attaches the current user to the context of each request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/andrewwphillips/library/internal/store"
)

const (
	DefaultIssuer   = "github.com/andrewwphillips/library"
	DefaultTokenTTL = 24 * time.Hour
)

// ErrInvalidCredential is returned for a bad password, unknown user or a token that can't be trusted.
// The message is the same for all so that the reason is not revealed.
var ErrInvalidCredential = errors.New("invalid credentials")

// Claims are the contents of a token.  The ID (jti) is unique for each token.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"id"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 signed tokens
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer/verifier.  If issuer is empty or ttl is not positive the defaults are used.
func NewTokens(secret []byte, issuer string, ttl time.Duration) *Tokens {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for the user
func (t *Tokens) Issue(u *store.User) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: u.Username,
		UserID:   u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	})
	s, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify checks the token's signature, expiry and issuer and returns its claims.
// Any problem with the token gives ErrInvalidCredential.
func (t *Tokens) Verify(s string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(s, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !claims.VerifyIssuer(t.issuer, true) || claims.UserID == "" {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidCredential)
	}
	return claims, nil
}
