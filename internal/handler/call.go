package handler

// call.go uses reflection to call a Go function that implements a GraphQL resolver

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/andrewwphillips/library/internal/field"
)

// fromFunc calls a Go function resolver and returns what it returns.
// Parameters:
//
//	ctx - is a context.Context that is passed on to the function if its 1st parameter is a context
//	astField - is the GraphQL query object field (which has the argument values)
//	v - the reflection "value" of the Go function
//	fieldInfo - contains the parameter names obtained from the Go field metadata
func (op *gqlOperation) fromFunc(ctx context.Context, astField *ast.Field, v reflect.Value, fieldInfo *field.Info,
) (reflect.Value, error) {
	t := v.Type()
	args := make([]reflect.Value, t.NumIn()) // list of arguments for the function call
	baseArg := 0                             // index of 1st query resolver argument (== 1 if function call needs ctx, else == 0)

	if fieldInfo.HasContext {
		args[0] = reflect.ValueOf(ctx)
		baseArg++
	}

	// GraphQL arguments are supplied by name not position, so match them up with the names from the metadata
	for n, name := range fieldInfo.Params {
		var rawValue interface{}
		var err error
		if argument := astField.Arguments.ForName(name); argument != nil {
			// rawValue stores the value of an argument the same way the JSON decoder does. Eg: a GraphQL "object"
			// is stored as a map[string]interface{} and a list is stored in a []interface{}.
			rawValue, err = argument.Value.Value(op.variables)
		} else if defArg := astField.Definition.Arguments.ForName(name); defArg != nil && defArg.DefaultValue != nil {
			rawValue, err = defArg.DefaultValue.Value(op.variables)
		}
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w getting argument %q of %q", err, name, astField.Name)
		}

		// Now convert the "raw" value into the expected Go parameter type
		if args[baseArg+n], err = getValue(t.In(baseArg+n), name, rawValue); err != nil {
			return reflect.Value{}, err
		}
	}

	out := v.Call(args) // === the actual function call (using reflection) ===

	// Extract the error return value (if any)
	if fieldInfo.HasError {
		if iface := out[1].Interface(); iface != nil {
			return reflect.Value{}, iface.(error)
		}
	}
	return out[0], nil
}

// getValue returns a value (eg for a resolver argument) given an interface{} and an expected Go type
// Parameters:
//
//	t = expected type
//	name = corresponding name of the argument
//	value = what needs to be returned as a value of type t (nil, int64, float64, string, bool, list or map)
func getValue(t reflect.Type, name string, value interface{}) (reflect.Value, error) {
	if value == nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
			return reflect.Zero(t), nil // null
		}
		return reflect.Value{}, fmt.Errorf("argument %q of type %v cannot be null", name, t)
	}

	switch t.Kind() {
	case reflect.Ptr:
		// nullable argument: make the pointed to value then take its address
		elem, err := getValue(t.Elem(), name, value)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil

	case reflect.Interface:
		return reflect.ValueOf(value), nil

	case reflect.Slice:
		list := reflect.ValueOf(value)
		if list.Kind() != reflect.Slice {
			// coerce a single value into a list
			list = reflect.ValueOf([]interface{}{value})
		}
		r := reflect.MakeSlice(t, list.Len(), list.Len())
		for i := 0; i < list.Len(); i++ {
			elem, err := getValue(t.Elem(), fmt.Sprintf("%s[%d]", name, i), list.Index(i).Interface())
			if err != nil {
				return reflect.Value{}, err
			}
			r.Index(i).Set(elem)
		}
		return r, nil

	case reflect.Struct:
		m, ok := value.(map[string]interface{})
		if !ok {
			return reflect.Value{}, fmt.Errorf("decoding %q - expected an input object", name)
		}
		return getStruct(t, name, m)
	}

	// Scalars
	r := reflect.New(t).Elem()
	switch v := value.(type) {
	case int64:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if r.OverflowInt(v) {
				return reflect.Value{}, fmt.Errorf("argument %q value %d overflows %v", name, v, t)
			}
			r.SetInt(v)
			return r, nil
		case reflect.Float32, reflect.Float64:
			r.SetFloat(float64(v))
			return r, nil
		case reflect.String:
			r.SetString(fmt.Sprint(v)) // eg an integer ID
			return r, nil
		}
	case float64:
		switch t.Kind() {
		case reflect.Float32, reflect.Float64:
			r.SetFloat(v)
			return r, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if v != math.Trunc(v) || r.OverflowInt(int64(v)) {
				return reflect.Value{}, fmt.Errorf("argument %q value %v is not a valid %v", name, v, t)
			}
			r.SetInt(int64(v))
			return r, nil
		}
	case string:
		if t.Kind() == reflect.String {
			r.SetString(v)
			return r, nil
		}
	case bool:
		if t.Kind() == reflect.Bool {
			r.SetBool(v)
			return r, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("argument %q: cannot use %T as %v", name, value, t)
}

// getStruct makes a Go struct from a GraphQL input object where each map entry is a field of the object
func getStruct(t reflect.Type, name string, m map[string]interface{}) (reflect.Value, error) {
	r := reflect.New(t).Elem()
	for i := 0; i < t.NumField(); i++ {
		tField := t.Field(i)
		info, err := field.Get(&tField)
		if err != nil {
			return reflect.Value{}, err
		}
		if info == nil {
			continue
		}
		value, ok := m[info.Name]
		if !ok {
			continue
		}
		v, err := getValue(tField.Type, name+"."+info.Name, value)
		if err != nil {
			return reflect.Value{}, err
		}
		r.Field(i).Set(v)
	}
	return r, nil
}

// subscriptionSource calls the resolver of a subscription root field which must return a channel
func (op *gqlOperation) subscriptionSource(ctx context.Context, astField *ast.Field, v reflect.Value) (reflect.Value, error) {
	if !v.IsValid() || v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("no subscription resolvers for %q", astField.Name)
	}
	ch, err := op.callResolver(ctx, astField, v)
	if err != nil {
		return reflect.Value{}, err
	}
	if !ch.IsValid() || ch.Kind() != reflect.Chan || ch.IsNil() {
		return reflect.Value{}, fmt.Errorf("subscription %q must resolve to a channel", astField.Name)
	}
	if ch.Type().ChanDir()&reflect.RecvDir == 0 {
		return reflect.Value{}, fmt.Errorf("subscription %q channel cannot be received from", astField.Name)
	}
	return ch, nil
}

// recvValue waits for the next value from a (reflected) channel, returning false if the channel
// was closed or ctx is done first
func recvValue(ctx context.Context, ch reflect.Value) (reflect.Value, bool) {
	chosen, v, ok := reflect.Select([]reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		{Dir: reflect.SelectRecv, Chan: ch},
	})
	if chosen == 0 || !ok {
		return reflect.Value{}, false
	}
	return v, true
}
