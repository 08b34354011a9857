// Package store is the data access layer for authors, books and users.
// There are two implementations of the Store interface: Memory (used for tests and
// when no database is configured) and Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a single record lookup finds nothing
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned (wrapped in a *ValidationError) when an insert would break a uniqueness rule
	ErrDuplicate = errors.New("already exists")
)

type (
	// Author is a writer of one or more books.  Names are unique.
	Author struct {
		ID   string
		Name string
		Born *int
	}

	// Book is created once and never modified
	Book struct {
		ID        string
		Title     string
		Published int
		AuthorID  string
		Genres    []string
	}

	// User is someone who can log in.  PasswordHash is a bcrypt hash, or empty if the user
	// was created without a password (in which case the shared secret is used).
	User struct {
		ID            string
		Username      string
		FavoriteGenre string
		PasswordHash  []byte
	}

	// AuthorFilter selects one author by ID or (exact) name
	AuthorFilter struct {
		ID   string
		Name string
	}

	// BookFilter restricts FindBooks and CountBooks; empty fields match everything
	BookFilter struct {
		AuthorID string
		Genre    string // books having this genre as one of their genres
	}

	// UserFilter selects one user by ID or username
	UserFilter struct {
		ID       string
		Username string
	}
)

// Store provides access to the library's collections.  Results are returned in insertion order.
type Store interface {
	// FindAuthors returns the authors with the given IDs, or all authors if no IDs are given
	FindAuthors(ctx context.Context, ids ...string) ([]Author, error)
	// FindAuthor returns ErrNotFound if no author matches
	FindAuthor(ctx context.Context, filter AuthorFilter) (*Author, error)
	CountAuthors(ctx context.Context) (int, error)
	// InsertAuthor validates the author, assigns its ID and saves it
	InsertAuthor(ctx context.Context, a *Author) error
	// UpdateAuthor saves changes to an existing author, returning ErrNotFound if its ID is unknown
	UpdateAuthor(ctx context.Context, a *Author) error

	FindBooks(ctx context.Context, filter BookFilter) ([]Book, error)
	CountBooks(ctx context.Context, filter BookFilter) (int, error)
	// CountBooksByAuthor returns the number of books of each of the authors in one go.
	// Every ID given is in the returned map (with a zero count if the author has no books).
	CountBooksByAuthor(ctx context.Context, authorIDs []string) (map[string]int, error)
	// InsertBook validates the book, assigns its ID and saves it
	InsertBook(ctx context.Context, b *Book) error

	// FindUser returns ErrNotFound if no user matches
	FindUser(ctx context.Context, filter UserFilter) (*User, error)
	// InsertUser validates the user, assigns its ID and saves it
	InsertUser(ctx context.Context, u *User) error

	Ping(ctx context.Context) error
	Close() error
}

// ValidationError is returned when a record is rejected, because it is invalid or a duplicate
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// duplicate makes the error returned when a unique field value is already used
func duplicate(what, value string) error {
	return &ValidationError{Err: fmt.Errorf("%s %q %w", what, value, ErrDuplicate)}
}

// unknownAuthor is returned when a book refers to an author that does not exist
func unknownAuthor(id string) error {
	return &ValidationError{Err: fmt.Errorf("author %q %w", id, ErrNotFound)}
}

// errNoFilter is returned when a single record lookup is given nothing to look for
var errNoFilter = errors.New("no ID or name given for lookup")
