package handler

// result.go is used to generate the query output by walking the selections of the query
// and finding the corresponding resolvers (fields of Go structs)

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/dolmen-go/jsonmap"
	"github.com/rs/zerolog/log"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

type (
	// gqlOperation controls an operation (query/mutation/subscription) of a GraphQL request
	gqlOperation struct {
		*Handler // required for resolver lookups, root structs etc

		variables map[string]interface{} // variables of this op (extracted from the request)

		mu     sync.Mutex // protects errors as query fields may be resolved concurrently
		errors gqlerror.List
	}

	// selected is a field of a selection set after fragments have been expanded and directives applied
	selected struct {
		alias string
		field *ast.Field
	}

	// extensionError is implemented by errors that want to add "extensions" to the GraphQL error
	extensionError interface {
		Extensions() map[string]interface{}
	}
)

// getSelections resolves the selections of an object type by finding and evaluating the corresponding resolver(s)
// in the Go struct v.  Returns a jsonmap.Ordered (a map of values and a slice that remembers the order they were
// added) with an entry for each selection.  If a non-null field resolves to null (due to an error) then the
// object as a whole is null which is indicated by returning false.
func (op *gqlOperation) getSelections(ctx context.Context, set ast.SelectionSet, v reflect.Value, def *ast.Definition,
	path ast.Path, concurrent bool,
) (jsonmap.Ordered, bool) {
	fields := op.collectFields(set, def)
	values := make([]interface{}, len(fields))
	oks := make([]bool, len(fields))

	if concurrent && len(fields) > 1 {
		var wg sync.WaitGroup
		for i, f := range fields {
			wg.Add(1)
			go func(i int, f selected) {
				defer wg.Done()
				values[i], oks[i] = op.resolveField(ctx, f.field, v, extend(path, ast.PathName(f.alias)))
			}(i, f)
		}
		wg.Wait()
	} else {
		for i, f := range fields {
			values[i], oks[i] = op.resolveField(ctx, f.field, v, extend(path, ast.PathName(f.alias)))
		}
	}

	names := make([]string, len(fields))
	for i, f := range fields {
		if !oks[i] {
			return jsonmap.Ordered{}, false
		}
		names[i] = f.alias
	}
	return newOrdered(names, values), true
}

// collectFields expands fragments and applies @skip/@include to get the fields to be resolved for an object type.
// Fields with the same alias (response name) are merged into one.
func (op *gqlOperation) collectFields(set ast.SelectionSet, def *ast.Definition) []selected {
	var r []selected
	index := make(map[string]int)

	var collect func(set ast.SelectionSet)
	collect = func(set ast.SelectionSet) {
		for _, s := range set {
			switch sel := s.(type) {
			case *ast.Field:
				if op.directiveBypass(sel.Directives) {
					continue
				}
				alias := sel.Alias
				if alias == "" {
					alias = sel.Name
				}
				if i, ok := index[alias]; ok {
					// merge sub-selections of fields with the same response name
					merged := *r[i].field
					merged.SelectionSet = append(append(ast.SelectionSet{}, r[i].field.SelectionSet...), sel.SelectionSet...)
					r[i].field = &merged
					continue
				}
				index[alias] = len(r)
				r = append(r, selected{alias: alias, field: sel})

			case *ast.InlineFragment:
				if op.directiveBypass(sel.Directives) || !op.typeMatches(sel.TypeCondition, def) {
					continue
				}
				collect(sel.SelectionSet)

			case *ast.FragmentSpread:
				if op.directiveBypass(sel.Directives) || sel.Definition == nil ||
					!op.typeMatches(sel.Definition.TypeCondition, def) {
					continue
				}
				collect(sel.Definition.SelectionSet)
			}
		}
	}
	collect(set)
	return r
}

// typeMatches checks if a fragment's type condition applies to an object type
func (op *gqlOperation) typeMatches(condition string, def *ast.Definition) bool {
	if condition == "" || condition == def.Name {
		return true
	}
	cond := op.schema.Types[condition]
	if cond == nil || (cond.Kind != ast.Interface && cond.Kind != ast.Union) {
		return false
	}
	for _, possible := range op.schema.GetPossibleTypes(cond) {
		if possible.Name == def.Name {
			return true
		}
	}
	return false
}

// directiveBypass handles field directives - just standard "skip" and "include" for now
// Returns: true if a directive indicates the field is not to be processed
func (op *gqlOperation) directiveBypass(directives ast.DirectiveList) bool {
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		reverse := d.Name == "skip"
		if arg := d.Arguments.ForName("if"); arg != nil {
			if rawValue, err := arg.Value.Value(op.variables); err == nil {
				if b, ok := rawValue.(bool); ok && b == reverse {
					return true
				}
			}
		}
	}
	return false
}

// resolveField finds and calls the resolver for a field of a struct and completes the value.
// Errors are recorded (with the path) and the returned bool is false if the field is non-null but
// could not be resolved, in which case the null propagates to the parent.
func (op *gqlOperation) resolveField(ctx context.Context, astField *ast.Field, v reflect.Value, path ast.Path,
) (interface{}, bool) {
	if astField.Name == "__typename" { // special introspection field (see GraphQL spec)
		return astField.ObjectDefinition.Name, true
	}
	nullable := astField.Definition == nil || !astField.Definition.Type.NonNull

	value, err := op.callResolver(ctx, astField, v)
	if err != nil {
		op.addError(err, astField, path)
		return nil, nullable
	}
	return op.completeValue(ctx, astField, astField.Definition.Type, value, path)
}

// callResolver gets the value of the resolver for a field (calling it if it's a function) converting any
// panic in the resolver into an (internal) error
func (op *gqlOperation) callResolver(ctx context.Context, astField *ast.Field, v reflect.Value) (value reflect.Value, err error) {
	defer func() {
		if recoverValue := recover(); recoverValue != nil {
			log.Error().Str("field", astField.Name).Interface("panic", recoverValue).Msg("resolver panicked")
			err = fmt.Errorf("internal error: panic %v", recoverValue)
		}
	}()

	r, ok := op.lookup.find(v.Type(), astField.Name)
	if !ok {
		return reflect.Value{}, fmt.Errorf("no resolver for field %q of %q", astField.Name, v.Type())
	}
	value = v.Field(r.index)
	if r.info.IsFunc {
		if value.IsNil() {
			return reflect.Value{}, nil // nil func resolves as null
		}
		return op.fromFunc(ctx, astField, value, r.info)
	}
	return value, nil
}

// completeValue converts the value returned by a resolver into something that can be encoded as JSON,
// recursively resolving sub-selections of objects and the elements of lists
func (op *gqlOperation) completeValue(ctx context.Context, astField *ast.Field, t *ast.Type, v reflect.Value,
	path ast.Path,
) (interface{}, bool) {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			v = reflect.Value{}
			break
		}
		v = v.Elem() // follow indirection
	}
	if !v.IsValid() {
		if t.NonNull {
			op.addError(fmt.Errorf("non-null field %q resolved as null", astField.Name), astField, path)
			return nil, false
		}
		return nil, true
	}

	// Lists
	if t.Elem != nil {
		if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
			op.addError(fmt.Errorf("list field %q resolved as %v", astField.Name, v.Type()), astField, path)
			return nil, !t.NonNull
		}
		if v.Kind() == reflect.Slice && v.IsNil() && !t.NonNull {
			return nil, true
		}
		results := make([]interface{}, v.Len()) // nil slice for a non-null list is an empty list
		for i := 0; i < v.Len(); i++ {
			value, ok := op.completeValue(ctx, astField, t.Elem, v.Index(i), extend(path, ast.PathIndex(i)))
			if !ok {
				return nil, !t.NonNull
			}
			results[i] = value
		}
		return results, true
	}

	def := op.schema.Types[t.NamedType]
	switch def.Kind {
	case ast.Object:
		if v.Kind() != reflect.Struct {
			op.addError(fmt.Errorf("object field %q resolved as %v", astField.Name, v.Type()), astField, path)
			return nil, !t.NonNull
		}
		result, ok := op.getSelections(ctx, astField.SelectionSet, v, def, path, false)
		if !ok {
			return nil, !t.NonNull
		}
		return result, true

	case ast.Scalar:
		if t.NamedType == "ID" {
			return fmt.Sprint(v.Interface()), true // IDs are always serialized as strings
		}
		return v.Interface(), true

	case ast.Enum:
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String(), true
		}
		return v.Interface(), true
	}
	op.addError(fmt.Errorf("field %q has unsupported type %s", astField.Name, t.NamedType), astField, path)
	return nil, !t.NonNull
}

// addError records an error for a field.  If the error (or an error it wraps) has extensions
// (see extensionError) they are added to the GraphQL error.
func (op *gqlOperation) addError(err error, astField *ast.Field, path ast.Path) {
	e := &gqlerror.Error{
		Message: err.Error(),
		Path:    path,
	}
	if astField.Position != nil {
		e.Locations = []gqlerror.Location{{Line: astField.Position.Line, Column: astField.Position.Column}}
	}
	var ext extensionError
	if errors.As(err, &ext) {
		e.Extensions = ext.Extensions()
	}

	op.mu.Lock()
	op.errors = append(op.errors, e)
	op.mu.Unlock()
}

// newOrdered makes a jsonmap.Ordered from names and corresponding values
func newOrdered(names []string, values []interface{}) jsonmap.Ordered {
	r := jsonmap.Ordered{
		Data:  make(map[string]interface{}, len(names)),
		Order: names,
	}
	for i, name := range names {
		r.Data[name] = values[i]
	}
	return r
}

// extend returns a new path with an extra element (paths are shared between goroutines so are never appended in place)
func extend(path ast.Path, elt ast.PathElement) ast.Path {
	r := make(ast.Path, len(path), len(path)+1)
	copy(r, path)
	return append(r, elt)
}

// structValue returns the struct that contains resolvers, following any pointers
func structValue(data interface{}) reflect.Value {
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v
}
