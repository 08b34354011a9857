// Package catalog has the GraphQL resolvers of the library: queries and mutations of
// authors, books and users, and the bookAdded subscription.
package catalog

import (
	"context"
	_ "embed"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/andrewwphillips/library/internal/auth"
	"github.com/andrewwphillips/library/internal/pubsub"
	"github.com/andrewwphillips/library/internal/schema"
	"github.com/andrewwphillips/library/internal/store"
)

// Schema is the GraphQL schema (SDL) that the resolvers implement
//
//go:embed schema.graphql
var Schema string

// TopicBookAdded is the hub topic on which new books are published
const TopicBookAdded = "BOOK_ADDED"

// LoadSchema parses and validates Schema
func LoadSchema() (*ast.Schema, error) {
	return schema.Load("library", Schema)
}

type (
	// Author resolves the GraphQL Author type.  BookCount is counted when requested.
	Author struct {
		ID        string `egg:"id"`
		Name      string
		Born      *int
		BookCount func(context.Context) (int, error)
	}

	// Book resolves the GraphQL Book type
	Book struct {
		ID        string `egg:"id"`
		Title     string
		Published int
		Author    Author
		Genres    []string
	}

	User struct {
		ID            string `egg:"id"`
		Username      string
		FavoriteGenre string
	}

	Token struct {
		Value string
	}

	// Query has the resolvers of the root query type
	Query struct {
		BookCount   func(context.Context) (int, error)
		AuthorCount func(context.Context) (int, error)
		AllBooks    func(context.Context, *string, *string) ([]Book, error) `egg:"allBooks(author,genre)"`
		AllAuthors  func(context.Context) ([]Author, error)
		Me          func(context.Context) *User
	}

	// Mutation has the resolvers of the root mutation type
	Mutation struct {
		AddBook    func(context.Context, string, int, string, []string) (*Book, error) `egg:"addBook(title,published,author,genres)"`
		AddAuthor  func(context.Context, string, *int) (*Author, error)                `egg:"addAuthor(name,born)"`
		EditAuthor func(context.Context, string, int) (*Author, error)                 `egg:"editAuthor(name,setBornTo)"`
		CreateUser func(context.Context, string, string, *string) (*User, error)       `egg:"createUser(username,favoriteGenre,password)"`
		Login      func(context.Context, string, string) (*Token, error)               `egg:"login(username,password)"`
	}

	// Subscription has the resolvers of the root subscription type
	Subscription struct {
		BookAdded func(context.Context) (<-chan Book, error)
	}
)

// Resolver holds what the resolvers need to do their work
type Resolver struct {
	store store.Store
	hub   *pubsub.Hub[Book]
	auth  *auth.Service
}

// New creates the resolvers using the store for data, the hub for publishing new books and
// the auth service for creating users and logging in
func New(s store.Store, hub *pubsub.Hub[Book], svc *auth.Service) *Resolver {
	return &Resolver{store: s, hub: hub, auth: svc}
}

func (r *Resolver) Query() *Query {
	return &Query{
		BookCount:   r.bookCount,
		AuthorCount: r.authorCount,
		AllBooks:    r.allBooks,
		AllAuthors:  r.allAuthors,
		Me:          r.me,
	}
}

func (r *Resolver) Mutation() *Mutation {
	return &Mutation{
		AddBook:    r.addBook,
		AddAuthor:  r.addAuthor,
		EditAuthor: r.editAuthor,
		CreateUser: r.createUser,
		Login:      r.login,
	}
}

func (r *Resolver) Subscription() *Subscription {
	return &Subscription{BookAdded: r.bookAdded}
}

// bookAdded streams every book added from now on until ctx is done
func (r *Resolver) bookAdded(ctx context.Context) (<-chan Book, error) {
	return r.hub.Subscribe(ctx, TopicBookAdded), nil
}

// author makes the GraphQL author.  The book count is taken from counts if not nil (for lists of
// authors), otherwise it is counted for just this author when requested.
func (r *Resolver) author(a store.Author, counts *countLoader) Author {
	id := a.ID
	bookCount := func(ctx context.Context) (int, error) {
		if counts != nil {
			return counts.get(ctx, id)
		}
		n, err := r.store.CountBooks(ctx, store.BookFilter{AuthorID: id})
		if err != nil {
			return 0, internal(err, "counting books failed")
		}
		return n, nil
	}
	return Author{ID: a.ID, Name: a.Name, Born: a.Born, BookCount: bookCount}
}

func (r *Resolver) book(b store.Book, author Author) Book {
	return Book{
		ID:        b.ID,
		Title:     b.Title,
		Published: b.Published,
		Author:    author,
		Genres:    b.Genres,
	}
}

// currentUser returns the authenticated user or an UNAUTHENTICATED error
func currentUser(ctx context.Context) (*store.User, error) {
	u := auth.CurrentUser(ctx)
	if u == nil {
		return nil, errUnauthenticated
	}
	return u, nil
}
