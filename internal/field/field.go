// Package field is for analysing Go struct fields for use as GraphQL query fields (resolvers)
package field

// field.go generates GraphQL resolver info from a Go struct field

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// Info is returned by Get() with info extracted from a struct field to be used as a GraphQL resolver.
// The info is obtained from the field's name, type and "egg" (metadata) tag.
type Info struct {
	Name       string       // field name for use in GraphQL queries - based on metadata (tag) or Go struct field name
	ResultType reflect.Type // Go type of the resolved value = field type or func return type (pointers removed)

	// The following are for function resolvers only
	IsFunc     bool
	Params     []string // name(s) of args to resolver function obtained from metadata
	HasContext bool     // 1st function parameter is a context.Context (not a query argument)
	HasError   bool     // has 2 return values the 2nd of which is a Go error
}

var (
	// contextType is used to check if a resolver function takes a context.Context (1st) parameter
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

	// errorType is used to check if a resolver function returns a (2nd) error return value
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Get checks if a field in a Go struct is exported and, if so, returns the GraphQL field info. incl. the
// GQL field name, derived from the Go field name (with 1st char lower-cased) or taken from the tag (metadata).
// An error may be returned e.g. for malformed metadata, or a resolver function returning too many values.
// If the field is not exported or the tag is a dash (-) then nil is returned, but no error.
func Get(f *reflect.StructField) (fieldInfo *Info, err error) {
	if f.PkgPath != "" || f.Anonymous {
		return // unexported or embedded field
	}

	if fieldInfo, err = GetTagInfo(f.Tag.Get(TagName)); err != nil {
		return nil, fmt.Errorf("%w getting tag info from field %q", err, f.Name)
	}
	if fieldInfo == nil {
		return // explicitly omitted field
	}

	if fieldInfo.Name == "" {
		// make GraphQL name from Go field name with lower-case first letter
		first, n := utf8.DecodeRuneInString(f.Name)
		fieldInfo.Name = string(unicode.ToLower(first)) + f.Name[n:]
	}

	t := f.Type
	if t.Kind() == reflect.Func {
		fieldInfo.IsFunc = true
		firstIndex := 0
		if t.NumIn() > 0 && t.In(0) == contextType {
			// 1st param is a context so don't add it to the list of query arguments
			fieldInfo.HasContext = true
			firstIndex++
		}
		if t.IsVariadic() {
			return nil, fmt.Errorf("resolver %q cannot be variadic", f.Name)
		}
		if t.NumIn()-firstIndex != len(fieldInfo.Params) {
			return nil, fmt.Errorf("function %q argument count should be %d but is %d",
				f.Name, len(fieldInfo.Params), t.NumIn()-firstIndex)
		}

		// Validate the resolver function return type(s)
		switch t.NumOut() {
		case 0:
			return nil, errors.New("resolver " + f.Name + " must return a value (or 2)")
		case 1:
			// nothing here
		case 2:
			if t.Out(1) != errorType {
				return nil, errors.New("resolver " + f.Name + " 2nd return must be error type")
			}
			fieldInfo.HasError = true
		default:
			return nil, errors.New("resolver " + f.Name + " returns too many values")
		}
		t = t.Out(0) // now use return type of func as resolver type
	} else if fieldInfo.Params != nil {
		return nil, errors.New("arguments cannot be supplied for non-function resolver " + f.Name)
	}

	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	fieldInfo.ResultType = t
	return
}

// BaseType strips pointers, slices, arrays and channels to find the Go type of the object (or scalar) resolved
func BaseType(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array, reflect.Chan:
			t = t.Elem()
		default:
			return t
		}
	}
}
