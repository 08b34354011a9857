package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)

// SQLSTATE codes of errors that are mapped to validation errors
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// migrations create the tables if they do not already exist.  The seq columns give the insertion order.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS authors (
		seq  BIGINT GENERATED ALWAYS AS IDENTITY,
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL CONSTRAINT authors_name_key UNIQUE,
		born INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		seq       BIGINT GENERATED ALWAYS AS IDENTITY,
		id        TEXT PRIMARY KEY,
		title     TEXT NOT NULL CONSTRAINT books_title_key UNIQUE,
		published INTEGER NOT NULL,
		author_id TEXT NOT NULL REFERENCES authors (id),
		genres    TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS books_author_id_idx ON books (author_id)`,
	`CREATE INDEX IF NOT EXISTS books_genres_idx ON books USING GIN (genres)`,
	`CREATE TABLE IF NOT EXISTS users (
		seq            BIGINT GENERATED ALWAYS AS IDENTITY,
		id             TEXT PRIMARY KEY,
		username       TEXT NOT NULL CONSTRAINT users_username_key UNIQUE,
		favorite_genre TEXT NOT NULL,
		password_hash  BYTEA
	)`,
}

// Postgres is a Store backed by a PostgreSQL database
type Postgres struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// OpenPostgres connects to the database at url, checks the connection and creates the tables if necessary.
// If maxConns is positive it limits the size of the connection pool.
func OpenPostgres(ctx context.Context, url string, maxConns int32) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	p := &Postgres{pool: pool, tracer: otel.Tracer("github.com/andrewwphillips/library/internal/store")}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Str("host", config.ConnConfig.Host).Str("database", config.ConnConfig.Database).Msg("connected to postgres")
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// start begins a span for a store call
func (p *Postgres) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "store."+name, trace.WithAttributes(attrs...))
}

// end records the error (if any) in the span and ends it
func end(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (p *Postgres) FindAuthors(ctx context.Context, ids ...string) (r []Author, err error) {
	ctx, span := p.start(ctx, "find_authors", attribute.Int("ids", len(ids)))
	defer func() { end(span, err) }()

	query, args := `SELECT id, name, born FROM authors`, []any(nil)
	if len(ids) > 0 {
		query, args = query+` WHERE id = ANY($1)`, []any{ids}
	}
	rows, err := p.pool.Query(ctx, query+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("find authors: %w", err)
	}
	r, err = pgx.CollectRows(rows, scanAuthor)
	if err != nil {
		return nil, fmt.Errorf("find authors: %w", err)
	}
	return r, nil
}

func scanAuthor(row pgx.CollectableRow) (a Author, err error) {
	err = row.Scan(&a.ID, &a.Name, &a.Born)
	return
}

func (p *Postgres) FindAuthor(ctx context.Context, filter AuthorFilter) (r *Author, err error) {
	ctx, span := p.start(ctx, "find_author", attribute.String("id", filter.ID), attribute.String("name", filter.Name))
	defer func() { end(span, err) }()

	where, args := conditions(map[string]string{"id": filter.ID, "name": filter.Name})
	if len(args) == 0 {
		return nil, errNoFilter
	}
	rows, err := p.pool.Query(ctx, `SELECT id, name, born FROM authors`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("find author: %w", err)
	}
	a, err := pgx.CollectOneRow(rows, scanAuthor)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("find author: %w", err)
	}
	return &a, nil
}

func (p *Postgres) CountAuthors(ctx context.Context) (count int, err error) {
	ctx, span := p.start(ctx, "count_authors")
	defer func() { end(span, err) }()

	if err = p.pool.QueryRow(ctx, `SELECT count(*) FROM authors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count authors: %w", err)
	}
	return count, nil
}

func (p *Postgres) InsertAuthor(ctx context.Context, a *Author) (err error) {
	ctx, span := p.start(ctx, "insert_author", attribute.String("name", a.Name))
	defer func() { end(span, err) }()

	if err = a.Validate(); err != nil {
		return err
	}
	id := uuid.NewString()
	if _, err = p.pool.Exec(ctx, `INSERT INTO authors (id, name, born) VALUES ($1, $2, $3)`, id, a.Name, a.Born); err != nil {
		if isViolation(err, uniqueViolation) {
			return duplicate("author name", a.Name)
		}
		return fmt.Errorf("insert author: %w", err)
	}
	a.ID = id
	return nil
}

func (p *Postgres) UpdateAuthor(ctx context.Context, a *Author) (err error) {
	ctx, span := p.start(ctx, "update_author", attribute.String("id", a.ID))
	defer func() { end(span, err) }()

	if err = a.Validate(); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `UPDATE authors SET name = $2, born = $3 WHERE id = $1`, a.ID, a.Name, a.Born)
	if err != nil {
		if isViolation(err, uniqueViolation) {
			return duplicate("author name", a.Name)
		}
		return fmt.Errorf("update author: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) FindBooks(ctx context.Context, filter BookFilter) (r []Book, err error) {
	ctx, span := p.start(ctx, "find_books", attribute.String("author_id", filter.AuthorID), attribute.String("genre", filter.Genre))
	defer func() { end(span, err) }()

	where, args := filter.where()
	rows, err := p.pool.Query(ctx, `SELECT id, title, published, author_id, genres FROM books`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("find books: %w", err)
	}
	r, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (b Book, err error) {
		err = row.Scan(&b.ID, &b.Title, &b.Published, &b.AuthorID, &b.Genres)
		return
	})
	if err != nil {
		return nil, fmt.Errorf("find books: %w", err)
	}
	return r, nil
}

func (p *Postgres) CountBooks(ctx context.Context, filter BookFilter) (count int, err error) {
	ctx, span := p.start(ctx, "count_books", attribute.String("author_id", filter.AuthorID), attribute.String("genre", filter.Genre))
	defer func() { end(span, err) }()

	where, args := filter.where()
	if err = p.pool.QueryRow(ctx, `SELECT count(*) FROM books`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return count, nil
}

func (p *Postgres) CountBooksByAuthor(ctx context.Context, authorIDs []string) (r map[string]int, err error) {
	ctx, span := p.start(ctx, "count_books_by_author", attribute.Int("authors", len(authorIDs)))
	defer func() { end(span, err) }()

	r = make(map[string]int, len(authorIDs))
	for _, id := range authorIDs {
		r[id] = 0
	}
	if len(authorIDs) == 0 {
		return r, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT author_id, count(*) FROM books WHERE author_id = ANY($1) GROUP BY author_id`, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("count books by author: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err = rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("count books by author: %w", err)
		}
		r[id] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("count books by author: %w", err)
	}
	return r, nil
}

func (p *Postgres) InsertBook(ctx context.Context, b *Book) (err error) {
	ctx, span := p.start(ctx, "insert_book", attribute.String("title", b.Title))
	defer func() { end(span, err) }()

	if err = b.Validate(); err != nil {
		return err
	}
	genres := b.Genres
	if genres == nil {
		genres = []string{}
	}
	id := uuid.NewString()
	_, err = p.pool.Exec(ctx, `INSERT INTO books (id, title, published, author_id, genres) VALUES ($1, $2, $3, $4, $5)`,
		id, b.Title, b.Published, b.AuthorID, genres)
	switch {
	case isViolation(err, uniqueViolation):
		return duplicate("book title", b.Title)
	case isViolation(err, foreignKeyViolation):
		return unknownAuthor(b.AuthorID)
	case err != nil:
		return fmt.Errorf("insert book: %w", err)
	}
	b.ID = id
	return nil
}

func (p *Postgres) FindUser(ctx context.Context, filter UserFilter) (r *User, err error) {
	ctx, span := p.start(ctx, "find_user", attribute.String("id", filter.ID), attribute.String("username", filter.Username))
	defer func() { end(span, err) }()

	where, args := conditions(map[string]string{"id": filter.ID, "username": filter.Username})
	if len(args) == 0 {
		return nil, errNoFilter
	}
	var u User
	err = p.pool.QueryRow(ctx, `SELECT id, username, favorite_genre, password_hash FROM users`+where, args...).
		Scan(&u.ID, &u.Username, &u.FavoriteGenre, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) InsertUser(ctx context.Context, u *User) (err error) {
	ctx, span := p.start(ctx, "insert_user", attribute.String("username", u.Username))
	defer func() { end(span, err) }()

	if err = u.Validate(); err != nil {
		return err
	}
	id := uuid.NewString()
	_, err = p.pool.Exec(ctx, `INSERT INTO users (id, username, favorite_genre, password_hash) VALUES ($1, $2, $3, $4)`,
		id, u.Username, u.FavoriteGenre, u.PasswordHash)
	if err != nil {
		if isViolation(err, uniqueViolation) {
			return duplicate("username", u.Username)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// where makes the WHERE clause (and its arguments) for a book filter
func (f BookFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.AuthorID != "" {
		args = append(args, f.AuthorID)
		conds = append(conds, fmt.Sprintf("author_id = $%d", len(args)))
	}
	if f.Genre != "" {
		args = append(args, f.Genre)
		conds = append(conds, fmt.Sprintf("$%d = ANY(genres)", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// conditions makes a WHERE clause matching the non-empty values of the column -> value map
func conditions(columns map[string]string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, col := range []string{"id", "name", "username"} {
		if v := columns[col]; v != "" {
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// isViolation checks if err is a postgres error with the SQLSTATE code
func isViolation(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
