package handler

// lookup.go caches, for each Go struct type, where to find the resolver for each GraphQL field name

import (
	"reflect"
	"sync"

	"github.com/andrewwphillips/library/internal/field"
)

type (
	// resolver says where the resolver for a GraphQL field is in a struct and how to call it
	resolver struct {
		index int // index of the Go struct field
		info  *field.Info
	}

	// resolverLookup maps a Go struct type to its resolvers keyed by GraphQL field name.
	// Entries are built on first use and never change, so they can be shared by concurrent requests.
	resolverLookup struct {
		mu    sync.RWMutex
		types map[reflect.Type]map[string]resolver
	}
)

func newResolverLookup() *resolverLookup {
	return &resolverLookup{types: make(map[reflect.Type]map[string]resolver)}
}

// find returns the resolver for a GraphQL field name in struct type t
func (l *resolverLookup) find(t reflect.Type, name string) (resolver, bool) {
	l.mu.RLock()
	m, ok := l.types[t]
	l.mu.RUnlock()
	if !ok {
		m = buildResolvers(t)
		l.mu.Lock()
		l.types[t] = m
		l.mu.Unlock()
	}
	r, ok := m[name]
	return r, ok
}

// buildResolvers scans the fields of a struct.  Malformed fields have already been reported by schema.Check
// when the handler was created, so they are just skipped here.
func buildResolvers(t reflect.Type) map[string]resolver {
	m := make(map[string]resolver, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tField := t.Field(i)
		info, err := field.Get(&tField)
		if err != nil || info == nil {
			continue
		}
		m[info.Name] = resolver{index: i, info: info}
	}
	return m
}
