package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/andrewwphillips/library/internal/store"
)

type (
	sampleAuthor struct {
		name string
		born int // 0 if unknown
	}
	sampleBook struct {
		title     string
		published int
		author    string
		genres    []string
	}
)

var (
	sampleAuthors = []sampleAuthor{
		{"Robert Martin", 1952},
		{"Martin Fowler", 1963},
		{"Fyodor Dostoevsky", 1821},
		{"Joshua Kerievsky", 0},
		{"Sandi Metz", 0},
	}
	sampleBooks = []sampleBook{
		{"Clean Code", 2008, "Robert Martin", []string{"refactoring"}},
		{"Agile software development", 2002, "Robert Martin", []string{"agile", "patterns", "design"}},
		{"Refactoring, edition 2", 2018, "Martin Fowler", []string{"refactoring"}},
		{"Refactoring to patterns", 2008, "Joshua Kerievsky", []string{"refactoring", "patterns"}},
		{"Practical Object-Oriented Design, An Agile Primer Using Ruby", 2012, "Sandi Metz", []string{"refactoring", "design"}},
		{"Crime and punishment", 1866, "Fyodor Dostoevsky", []string{"classic", "crime"}},
		{"Demons", 1872, "Fyodor Dostoevsky", []string{"classic", "revolution"}},
	}
)

// Seed adds a small set of sample authors and books to the store.  Anything already there is
// left alone so it is safe to seed the same store more than once.  It returns the number of books added.
func Seed(ctx context.Context, s store.Store) (int, error) {
	ids := make(map[string]string, len(sampleAuthors))
	for _, sa := range sampleAuthors {
		a := &store.Author{Name: sa.name}
		if sa.born != 0 {
			born := sa.born
			a.Born = &born
		}
		err := s.InsertAuthor(ctx, a)
		if errors.Is(err, store.ErrDuplicate) {
			a, err = s.FindAuthor(ctx, store.AuthorFilter{Name: sa.name})
		}
		if err != nil {
			return 0, fmt.Errorf("seeding author %q: %w", sa.name, err)
		}
		ids[sa.name] = a.ID
	}

	added := 0
	for _, sb := range sampleBooks {
		b := &store.Book{Title: sb.title, Published: sb.published, AuthorID: ids[sb.author], Genres: sb.genres}
		err := s.InsertBook(ctx, b)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		} else if err != nil {
			return added, fmt.Errorf("seeding book %q: %w", sb.title, err)
		}
		added++
	}
	log.Info().Int("books", added).Msg("sample data added")
	return added, nil
}
