package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/andrewwphillips/library/internal/store"
)

// CodeInvalidCredential is the GraphQL error extension code for authentication failures
const CodeInvalidCredential = "INVALID_CREDENTIAL"

// Session is what is known about who made a request.  It is attached to the request context
// once and never changed.  User is nil for an anonymous request.
type Session struct {
	User *store.User
}

type sessionKey struct{}

// WithUser returns a copy of ctx with a session for the user (nil for anonymous)
func WithUser(ctx context.Context, u *store.User) context.Context {
	if u != nil {
		copied := *u
		copied.PasswordHash = nil // not needed after login
		u = &copied
	}
	return context.WithValue(ctx, sessionKey{}, Session{User: u})
}

// CurrentUser returns the user of the request or nil if not authenticated
func CurrentUser(ctx context.Context) *store.User {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok && s.User != nil {
		copied := *s.User
		return &copied
	}
	return nil
}

// Guard turns a bearer credential into the current user
type Guard struct {
	tokens *Tokens
	users  store.Store
}

func NewGuard(tokens *Tokens, users store.Store) *Guard {
	return &Guard{tokens: tokens, users: users}
}

// Authenticate finds the user for an Authorization value ("Bearer <token>").
// No credential (or not a bearer one) gives a nil user and no error; so does a valid
// token for a user that no longer exists.  A token that can't be verified gives ErrInvalidCredential.
func (g *Guard) Authenticate(ctx context.Context, authorization string) (*store.User, error) {
	const prefix = "bearer "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return nil, nil
	}
	claims, err := g.tokens.Verify(strings.TrimSpace(authorization[len(prefix):]))
	if err != nil {
		return nil, err
	}
	u, err := g.users.FindUser(ctx, store.UserFilter{ID: claims.UserID})
	if errors.Is(err, store.ErrNotFound) {
		log.Debug().Str("userID", claims.UserID).Msg("token for unknown user")
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// Middleware authenticates every request (once) and stores the session in the request context.
// A request with a bad credential is rejected with a 401 status and a GraphQL error.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			status, code, message := http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "authentication failed"
			if errors.Is(err, ErrInvalidCredential) {
				status, code, message = http.StatusUnauthorized, CodeInvalidCredential, ErrInvalidCredential.Error()
			}
			log.Info().Err(err).Str("remote", r.RemoteAddr).Msg("request authentication failed")
			writeError(w, status, message, code)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// ConnectionInit authenticates a websocket connection from the connection_init payload, which may
// contain an "authorization" value (or "Authorization", directly or in "headers").  If there is none
// the session of the upgrade request is kept.
func (g *Guard) ConnectionInit(ctx context.Context, payload map[string]interface{}) (context.Context, error) {
	authorization := authorizationFrom(payload)
	if authorization == "" {
		return ctx, nil
	}
	u, err := g.Authenticate(ctx, authorization)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	return WithUser(ctx, u), nil
}

func authorizationFrom(payload map[string]interface{}) string {
	for _, key := range []string{"authorization", "Authorization"} {
		if s, ok := payload[key].(string); ok {
			return s
		}
	}
	if headers, ok := payload["headers"].(map[string]interface{}); ok {
		return authorizationFrom(headers)
	}
	return ""
}

// writeError sends a GraphQL style error response
func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Errors gqlerror.List `json:"errors"`
	}{gqlerror.List{{Message: message, Extensions: map[string]interface{}{"code": code}}}})
}
