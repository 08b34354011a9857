package schema

// check.go verifies that Go resolver structs provide a resolver for every field of the schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/andrewwphillips/library/internal/field"
)

// Check makes sure that every field of the query, mutation and subscription types of the schema
// (and of every object type reachable from them) has a corresponding exported field in the Go
// structs, and that function resolvers take the same arguments as the schema fields.
// qms holds the query, mutation and subscription structs (in that order, any may be nil).
func Check(s *ast.Schema, qms ...interface{}) error {
	checked := make(map[string]reflect.Type)
	for i, v := range qms {
		ep := EntryPoint(i)
		root := Root(s, ep)
		if v == nil {
			if root != nil {
				return fmt.Errorf("no resolvers supplied for %s type %q", ep, root.Name)
			}
			continue
		}
		if root == nil {
			return fmt.Errorf("resolvers supplied for %s but the schema has no %s type", ep, ep)
		}
		if err := checkObject(s, root, reflect.TypeOf(v), checked); err != nil {
			return err
		}
	}
	return nil
}

func checkObject(s *ast.Schema, def *ast.Definition, t reflect.Type, checked map[string]reflect.Type) error {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("GraphQL type %q must be resolved with a struct, not %v", def.Name, t)
	}
	if prev, ok := checked[def.Name]; ok {
		if prev != t {
			return fmt.Errorf("GraphQL type %q is resolved by both %v and %v", def.Name, prev, t)
		}
		return nil
	}
	checked[def.Name] = t

	resolvers, err := Resolvers(t)
	if err != nil {
		return fmt.Errorf("%w in Go type %v", err, t)
	}

	for _, fd := range def.Fields {
		if strings.HasPrefix(fd.Name, "__") {
			continue // introspection
		}
		info, ok := resolvers[fd.Name]
		if !ok {
			return fmt.Errorf("no resolver for field %q of %q in Go type %v", fd.Name, def.Name, t)
		}
		if info.IsFunc {
			if err := checkArgs(fd, info); err != nil {
				return fmt.Errorf("%w for field %q of %q", err, fd.Name, def.Name)
			}
		} else if len(fd.Arguments) > 0 {
			return fmt.Errorf("field %q of %q has arguments but Go field is not a func", fd.Name, def.Name)
		}

		if named := s.Types[fd.Type.Name()]; named != nil && named.Kind == ast.Object {
			if err := checkObject(s, named, field.BaseType(info.ResultType), checked); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkArgs(fd *ast.FieldDefinition, info *field.Info) error {
	want := make([]string, 0, len(fd.Arguments))
	for _, arg := range fd.Arguments {
		want = append(want, arg.Name)
	}
	got := append([]string(nil), info.Params...)
	sort.Strings(want)
	sort.Strings(got)
	if strings.Join(want, ",") != strings.Join(got, ",") {
		return fmt.Errorf("resolver arguments (%s) do not match schema arguments (%s)",
			strings.Join(got, ","), strings.Join(want, ","))
	}
	return nil
}

// Resolvers returns the field info of all the resolvers of a struct type keyed by GraphQL name
func Resolvers(t reflect.Type) (map[string]*field.Info, error) {
	r := make(map[string]*field.Info, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tField := t.Field(i)
		info, err := field.Get(&tField)
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue
		}
		if _, ok := r[info.Name]; ok {
			return nil, fmt.Errorf("duplicate resolver name %q", info.Name)
		}
		r[info.Name] = info
	}
	return r, nil
}
