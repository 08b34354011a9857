package catalog

import (
	"context"
	"errors"

	"github.com/andrewwphillips/library/internal/auth"
	"github.com/andrewwphillips/library/internal/store"
)

func (r *Resolver) bookCount(ctx context.Context) (int, error) {
	n, err := r.store.CountBooks(ctx, store.BookFilter{})
	if err != nil {
		return 0, internal(err, "counting books failed")
	}
	return n, nil
}

func (r *Resolver) authorCount(ctx context.Context) (int, error) {
	n, err := r.store.CountAuthors(ctx)
	if err != nil {
		return 0, internal(err, "counting authors failed")
	}
	return n, nil
}

// allBooks returns all books, or those of an author and/or with a genre (an empty
// author or genre does not filter).  An author that does not exist has no books (which is not an error).
func (r *Resolver) allBooks(ctx context.Context, author, genre *string) ([]Book, error) {
	var filter store.BookFilter
	if author != nil && *author != "" {
		a, err := r.store.FindAuthor(ctx, store.AuthorFilter{Name: *author})
		if errors.Is(err, store.ErrNotFound) {
			return []Book{}, nil
		} else if err != nil {
			return nil, userInput(err, map[string]interface{}{"author": *author, "genre": genre})
		}
		filter.AuthorID = a.ID
	}
	if genre != nil {
		filter.Genre = *genre
	}

	books, err := r.store.FindBooks(ctx, filter)
	if err != nil {
		return nil, internal(err, "finding books failed")
	}
	return r.withAuthors(ctx, books)
}

// withAuthors makes the GraphQL books, looking up all their authors at once
func (r *Resolver) withAuthors(ctx context.Context, books []store.Book) ([]Book, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, b := range books {
		if !seen[b.AuthorID] {
			seen[b.AuthorID] = true
			ids = append(ids, b.AuthorID)
		}
	}
	if len(ids) == 0 {
		return []Book{}, nil
	}
	authors, err := r.store.FindAuthors(ctx, ids...)
	if err != nil {
		return nil, internal(err, "finding authors failed")
	}

	counts := r.newCountLoader(ids...)
	byID := make(map[string]Author, len(authors))
	for _, a := range authors {
		byID[a.ID] = r.author(a, counts)
	}
	result := make([]Book, 0, len(books))
	for _, b := range books {
		a, ok := byID[b.AuthorID]
		if !ok {
			return nil, internal(store.ErrNotFound, "author of book "+b.Title+" is missing")
		}
		result = append(result, r.book(b, a))
	}
	return result, nil
}

// allAuthors returns all authors; their book counts are obtained together
func (r *Resolver) allAuthors(ctx context.Context) ([]Author, error) {
	authors, err := r.store.FindAuthors(ctx)
	if err != nil {
		return nil, internal(err, "finding authors failed")
	}
	ids := make([]string, len(authors))
	for i, a := range authors {
		ids[i] = a.ID
	}
	counts := r.newCountLoader(ids...)
	result := make([]Author, len(authors))
	for i, a := range authors {
		result[i] = r.author(a, counts)
	}
	return result, nil
}

// me returns the logged in user (or null)
func (r *Resolver) me(ctx context.Context) *User {
	u := auth.CurrentUser(ctx)
	if u == nil {
		return nil
	}
	return &User{ID: u.ID, Username: u.Username, FavoriteGenre: u.FavoriteGenre}
}
