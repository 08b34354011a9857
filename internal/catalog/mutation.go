package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/andrewwphillips/library/internal/auth"
	"github.com/andrewwphillips/library/internal/store"
)

// addBook adds a book, creating its author if there is not one of that name already.
// The new book is published to bookAdded subscribers.  An author created for a book that is
// then rejected is kept.
func (r *Resolver) addBook(ctx context.Context, title string, published int, author string, genres []string) (*Book, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	args := map[string]interface{}{"title": title, "published": published, "author": author, "genres": genres}

	a, err := r.findOrAddAuthor(ctx, author)
	if err != nil {
		return nil, userInput(err, args)
	}
	b := &store.Book{Title: title, Published: published, AuthorID: a.ID, Genres: genres}
	if err := r.store.InsertBook(ctx, b); err != nil {
		return nil, userInput(err, args)
	}

	book := r.book(*b, r.author(*a, nil))
	n := r.hub.Publish(TopicBookAdded, book)
	log.Info().Str("title", title).Str("author", author).Int("subscribers", n).Msg("book added")
	return &book, nil
}

// findOrAddAuthor returns the author with the name, adding it if it does not exist.  If another request
// adds the same author at the same time the insert fails as a duplicate and the other's author is used.
func (r *Resolver) findOrAddAuthor(ctx context.Context, name string) (*store.Author, error) {
	if name == "" {
		return nil, (&store.Author{}).Validate()
	}
	a, err := r.store.FindAuthor(ctx, store.AuthorFilter{Name: name})
	if !errors.Is(err, store.ErrNotFound) {
		return a, err
	}
	a = &store.Author{Name: name}
	err = r.store.InsertAuthor(ctx, a)
	if errors.Is(err, store.ErrDuplicate) {
		log.Debug().Str("author", name).Msg("author added concurrently")
		return r.store.FindAuthor(ctx, store.AuthorFilter{Name: name})
	} else if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Resolver) addAuthor(ctx context.Context, name string, born *int) (*Author, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	a := &store.Author{Name: name, Born: born}
	if err := r.store.InsertAuthor(ctx, a); err != nil {
		return nil, userInput(err, map[string]interface{}{"name": name, "born": born})
	}
	result := r.author(*a, nil)
	return &result, nil
}

// editAuthor sets the birth year of an author, returning null if there is no author of that name
func (r *Resolver) editAuthor(ctx context.Context, name string, setBornTo int) (*Author, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil // no author has an empty name
	}
	args := map[string]interface{}{"name": name, "setBornTo": setBornTo}

	a, err := r.store.FindAuthor(ctx, store.AuthorFilter{Name: name})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, userInput(err, args)
	}
	a.Born = &setBornTo
	if err := r.store.UpdateAuthor(ctx, a); errors.Is(err, store.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, userInput(err, args)
	}
	result := r.author(*a, nil)
	return &result, nil
}

// createUser adds a user (no login required).  A user created without a password logs in with the shared secret.
func (r *Resolver) createUser(ctx context.Context, username, favoriteGenre string, password *string) (*User, error) {
	u, err := r.auth.CreateUser(ctx, username, favoriteGenre, password)
	if err != nil {
		return nil, userInput(err, map[string]interface{}{"username": username, "favoriteGenre": favoriteGenre})
	}
	log.Info().Str("username", username).Msg("user created")
	return &User{ID: u.ID, Username: u.Username, FavoriteGenre: u.FavoriteGenre}, nil
}

func (r *Resolver) login(ctx context.Context, username, password string) (*Token, error) {
	token, err := r.auth.Login(ctx, username, password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredential):
		return nil, &Error{Message: "wrong credentials", Code: CodeInvalidCredential, Err: err}
	case errors.Is(err, auth.ErrRateLimited):
		return nil, &Error{Message: err.Error(), Code: CodeRateLimited, Err: err}
	case err != nil:
		return nil, internal(err, "login failed")
	}
	return &Token{Value: token}, nil
}
