package catalog

import (
	"context"
	"sync"
)

// countLoader counts the books of a group of authors with one store call, made the first time any
// of the counts is needed (and not at all if bookCount is not part of the query)
type countLoader struct {
	r   *Resolver
	ids []string

	once   sync.Once
	counts map[string]int
	err    error
}

func (r *Resolver) newCountLoader(ids ...string) *countLoader {
	return &countLoader{r: r, ids: ids}
}

func (l *countLoader) get(ctx context.Context, id string) (int, error) {
	l.once.Do(func() {
		if l.counts, l.err = l.r.store.CountBooksByAuthor(ctx, l.ids); l.err != nil {
			l.err = internal(l.err, "counting books failed")
		}
	})
	if l.err != nil {
		return 0, l.err
	}
	return l.counts[id], nil
}
