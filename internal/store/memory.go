package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is a Store that keeps everything in memory.  It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	authors []*Author
	books   []*Book
	users   []*User
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) FindAuthors(_ context.Context, ids ...string) ([]Author, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	r := make([]Author, 0, len(m.authors))
	for _, a := range m.authors {
		if len(ids) == 0 || want[a.ID] {
			r = append(r, copyAuthor(a))
		}
	}
	return r, nil
}

func (m *Memory) FindAuthor(_ context.Context, filter AuthorFilter) (*Author, error) {
	if filter.ID == "" && filter.Name == "" {
		return nil, errNoFilter
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a := m.author(filter); a != nil {
		r := copyAuthor(a)
		return &r, nil
	}
	return nil, ErrNotFound
}

// author finds the stored author matching all non-empty filter fields (caller holds the lock)
func (m *Memory) author(filter AuthorFilter) *Author {
	for _, a := range m.authors {
		if (filter.ID == "" || a.ID == filter.ID) && (filter.Name == "" || a.Name == filter.Name) {
			return a
		}
	}
	return nil
}

func (m *Memory) CountAuthors(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.authors), nil
}

func (m *Memory) InsertAuthor(_ context.Context, a *Author) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.author(AuthorFilter{Name: a.Name}) != nil {
		return duplicate("author name", a.Name)
	}
	a.ID = uuid.NewString()
	stored := copyAuthor(a)
	m.authors = append(m.authors, &stored)
	return nil
}

func (m *Memory) UpdateAuthor(_ context.Context, a *Author) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.author(AuthorFilter{ID: a.ID})
	if stored == nil {
		return ErrNotFound
	}
	if other := m.author(AuthorFilter{Name: a.Name}); other != nil && other != stored {
		return duplicate("author name", a.Name)
	}
	*stored = copyAuthor(a)
	return nil
}

func (m *Memory) FindBooks(_ context.Context, filter BookFilter) ([]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := make([]Book, 0, len(m.books))
	for _, b := range m.books {
		if filter.matches(b) {
			r = append(r, copyBook(b))
		}
	}
	return r, nil
}

func (m *Memory) CountBooks(_ context.Context, filter BookFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, b := range m.books {
		if filter.matches(b) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) CountBooksByAuthor(_ context.Context, authorIDs []string) (map[string]int, error) {
	r := make(map[string]int, len(authorIDs))
	for _, id := range authorIDs {
		r[id] = 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.books {
		if _, ok := r[b.AuthorID]; ok {
			r[b.AuthorID]++
		}
	}
	return r, nil
}

func (m *Memory) InsertBook(_ context.Context, b *Book) error {
	if err := b.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.author(AuthorFilter{ID: b.AuthorID}) == nil {
		return unknownAuthor(b.AuthorID)
	}
	for _, existing := range m.books {
		if existing.Title == b.Title {
			return duplicate("book title", b.Title)
		}
	}
	b.ID = uuid.NewString()
	stored := copyBook(b)
	m.books = append(m.books, &stored)
	return nil
}

func (m *Memory) FindUser(_ context.Context, filter UserFilter) (*User, error) {
	if filter.ID == "" && filter.Username == "" {
		return nil, errNoFilter
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if u := m.user(filter); u != nil {
		r := *u
		r.PasswordHash = append([]byte(nil), u.PasswordHash...)
		return &r, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) user(filter UserFilter) *User {
	for _, u := range m.users {
		if (filter.ID == "" || u.ID == filter.ID) && (filter.Username == "" || u.Username == filter.Username) {
			return u
		}
	}
	return nil
}

func (m *Memory) InsertUser(_ context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.user(UserFilter{Username: u.Username}) != nil {
		return duplicate("username", u.Username)
	}
	u.ID = uuid.NewString()
	stored := *u
	stored.PasswordHash = append([]byte(nil), u.PasswordHash...)
	m.users = append(m.users, &stored)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (f BookFilter) matches(b *Book) bool {
	if f.AuthorID != "" && b.AuthorID != f.AuthorID {
		return false
	}
	if f.Genre == "" {
		return true
	}
	for _, g := range b.Genres {
		if g == f.Genre {
			return true
		}
	}
	return false
}

// copyAuthor makes a copy that shares no memory with the original
func copyAuthor(a *Author) Author {
	r := *a
	if a.Born != nil {
		born := *a.Born
		r.Born = &born
	}
	return r
}

func copyBook(b *Book) Book {
	r := *b
	r.Genres = append([]string{}, b.Genres...)
	return r
}
