package catalog

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/andrewwphillips/library/internal/auth"
	"github.com/andrewwphillips/library/internal/store"
)

// Error codes added to the "extensions" of GraphQL errors
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeBadUserInput      = "BAD_USER_INPUT"
	CodeInvalidCredential = auth.CodeInvalidCredential
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_SERVER_ERROR"
)

// Error is returned by resolvers for errors that the client can act on
type Error struct {
	Message     string
	Code        string
	InvalidArgs map[string]interface{} // arguments of the rejected request (BAD_USER_INPUT only)
	Err         error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Extensions is used by the handler to fill in the extensions of the GraphQL error
func (e *Error) Extensions() map[string]interface{} {
	r := map[string]interface{}{"code": e.Code}
	if e.InvalidArgs != nil {
		r["invalidArgs"] = e.InvalidArgs
	}
	return r
}

var errUnauthenticated = &Error{Message: "not authenticated", Code: CodeUnauthenticated}

// userInput makes the error for a rejected write (or a failed lookup) carrying the original arguments
func userInput(err error, args map[string]interface{}) error {
	var ve *store.ValidationError
	if !errors.As(err, &ve) {
		log.Warn().Err(err).Interface("args", args).Msg("store operation failed")
	}
	return &Error{Message: err.Error(), Code: CodeBadUserInput, InvalidArgs: args, Err: err}
}

// internal hides the details of an unexpected error from the client
func internal(err error, msg string) error {
	log.Error().Err(err).Msg(msg)
	return &Error{Message: msg, Code: CodeInternal, Err: err}
}
