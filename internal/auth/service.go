package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/andrewwphillips/library/internal/store"
)

// ErrRateLimited is returned when login attempts arrive faster than allowed
var ErrRateLimited = errors.New("too many login attempts")

// Service logs users in and creates new users
type Service struct {
	users   store.Store
	tokens  *Tokens
	limiter *rate.Limiter

	shared []byte // hash of the secret used by users created without a password (nil = none)
	dummy  []byte // compared against for unknown users so all failures take about as long
}

// NewService creates the login service.  Users without their own password log in with sharedSecret
// (which is only kept as a hash); if it's empty such users can't log in.
// Logins are limited to limit per second with bursts of burst; a limit that is not positive means no limit.
func NewService(users store.Store, tokens *Tokens, sharedSecret string, limit float64, burst int) (*Service, error) {
	s := &Service{users: users, tokens: tokens, limiter: rate.NewLimiter(rate.Inf, 0)}
	if limit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}

	var err error
	if sharedSecret != "" {
		if s.shared, err = HashPassword(sharedSecret); err != nil {
			return nil, fmt.Errorf("hash shared secret: %w", err)
		}
	}
	if s.dummy, err = HashPassword(uuid.NewString()); err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return s, nil
}

// Tokens returns the issuer/verifier used for login tokens
func (s *Service) Tokens() *Tokens { return s.tokens }

// Login checks the user's password and returns a new token.  Every kind of failure (unknown user,
// wrong password) returns ErrInvalidCredential.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if !s.limiter.Allow() {
		return "", ErrRateLimited
	}
	var u *store.User
	if username != "" { // no user has an empty name
		var err error
		u, err = s.users.FindUser(ctx, store.UserFilter{Username: username})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("find user: %w", err)
		}
	}

	hash, known := s.dummy, false
	if u != nil {
		switch {
		case len(u.PasswordHash) > 0:
			hash, known = u.PasswordHash, true
		case s.shared != nil:
			hash, known = s.shared, true
		}
	}
	if ok := CheckPassword(hash, password); !ok || !known {
		log.Info().Str("username", username).Msg("login failed")
		return "", ErrInvalidCredential
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return "", err
	}
	log.Info().Str("username", username).Msg("logged in")
	return token, nil
}

// CreateUser saves a new user.  If password is nil the user logs in with the shared secret.
func (s *Service) CreateUser(ctx context.Context, username, favoriteGenre string, password *string) (*store.User, error) {
	u := &store.User{Username: username, FavoriteGenre: favoriteGenre}
	if password != nil {
		hash, err := HashPassword(*password)
		if err != nil {
			return nil, &store.ValidationError{Err: err}
		}
		u.PasswordHash = hash
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
