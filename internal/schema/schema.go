// Package schema loads a GraphQL schema (SDL) and checks that Go structs used as resolvers
// cover it.  This goes hand-in-hand with the "handler" which uses instances of those same
// structs to fulfill queries, mutations and subscriptions.
package schema

// schema.go contains the exported functions - Load, MustLoad and Check

import (
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// EntryPoint is an "enumeration" for the 3 different types of GraphQL entry point (query, mutation, subscription)
type EntryPoint int

const (
	Query EntryPoint = iota
	Mutation
	Subscription
)

// String returns the keyword used for the entry point in a GraphQL operation
func (ep EntryPoint) String() string {
	switch ep {
	case Query:
		return "query"
	case Mutation:
		return "mutation"
	case Subscription:
		return "subscription"
	}
	return fmt.Sprintf("EntryPoint(%d)", int(ep))
}

// Load parses and validates the schema definition language in sdl
func Load(name, sdl string) (*ast.Schema, error) {
	s, gqlErr := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if gqlErr != nil {
		return nil, fmt.Errorf("loading schema %q: %w", name, gqlErr)
	}
	return s, nil
}

// MustLoad is the same as Load but panics on error
func MustLoad(name, sdl string) *ast.Schema {
	s, err := Load(name, sdl)
	if err != nil {
		panic(err)
	}
	return s
}

// Root returns the root object definition of the schema for an entry point (nil if the schema has none)
func Root(s *ast.Schema, ep EntryPoint) *ast.Definition {
	switch ep {
	case Query:
		return s.Query
	case Mutation:
		return s.Mutation
	case Subscription:
		return s.Subscription
	}
	return nil
}
