package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andrewwphillips/library/internal/handler"
	"github.com/andrewwphillips/library/internal/schema"
)

// Note that the schema strings (below) must closely match the structs (further below).  For example, the
// stringSchema Query has a single String! field called "message" and the corresponding stringData struct has
// a single string field called "Message", where the field name must be capitalised (exported).  Similarly,
// the funcData struct, which is also used with the stringSchema, has a "Message" field, but it is a func().

const (
	stringSchema    = "type Query { message: String! }"
	listSchema      = "type Query { values: [Int!] }"
	nestedSchema    = "type Query { n: N! } type N { q: Boolean! p: Boolean! }"
	argsSchema      = "type Query { dbl(v: Int!): Int! }"
	args2Schema     = "type Query { f(i: Int!, s: String!): String! }"
	defaultSchema   = "type Query { f(i: Int!, s: String! = \"xyz\"): String! }"
	nullableSchema  = "type Query { greet(name: String): String! }"
	inputArgSchema  = "type Query { q(p: R!): String! } input R { s: String! f: Float! }"
	listArgSchema   = "type Query { sum(list: [Int!]!): Int! }"
	objectsSchema   = "type Query { items: [Item!]! } type Item { name: String! id: ID! }"
	idSchema        = "type Query { id: ID! }"
	nullIntSchema   = "type Query { p: Int }"
	contextSchema   = "type Query { hasContext: Boolean! }"
	floatArgsSchema = "type Query { half(v: Float!): Float! }"
)

type (
	inputType struct {
		S string
		F float64
	}
	item struct {
		Name string
		ID   int `egg:"id"`
	}
)

var (
	stringData = struct{ Message string }{"hello"}
	funcData   = struct{ Message func() string }{func() string { return "hi" }}
	nestedData = struct{ N struct{ Q, P bool } }{struct{ Q, P bool }{true, false}}
	argsData   = struct {
		Dbl func(int) int `egg:"dbl(v)"`
	}{func(v int) int { return 2 * v }}
	args2Data = struct {
		F func(int, string) string `egg:"f(i,s)"`
	}{func(i int, s string) string { return s + strconv.Itoa(i) }}
	nullableData = struct {
		Greet func(*string) string `egg:"greet(name)"`
	}{func(name *string) string {
		if name == nil {
			return "hello stranger"
		}
		return "hello " + *name
	}}
	inputArgData = struct {
		Q func(inputType) string `egg:"q(p)"`
	}{func(p inputType) string { return p.S + strconv.FormatFloat(p.F, 'f', -1, 64) }}
	listArgData = struct {
		Sum func([]int) int `egg:"sum(list)"`
	}{func(list []int) (r int) {
		for _, v := range list {
			r += v
		}
		return
	}}
	objectsData  = struct{ Items []item }{[]item{{"a", 1}, {"b", 2}}}
	nilItemsData = struct{ Items []item }{}
	idData       = struct {
		ID int `egg:"id"`
	}{42}
	nullIntData = struct{ P *int }{}
	contextData = struct {
		HasContext func(context.Context) (bool, error)
	}{func(ctx context.Context) (bool, error) { return ctx != nil, nil }}
	floatArgsData = struct {
		Half func(float64) float64 `egg:"half(v)"`
	}{func(v float64) float64 { return v / 2 }}
)

// happyData has test cases that should return a result without errors
var happyData = map[string]struct {
	schema    string      // GraphQL schema
	data      interface{} // corresponding matching struct
	query     string      // GraphQL query to send to the handler (query syntax)
	variables string      // GraphQL variables to use with the query (JSON)
	expected  interface{} // expected result after decoding the returned JSON
}{
	"String":        {stringSchema, stringData, "{ message }", "", map[string]interface{}{"message": "hello"}},
	"Func":          {stringSchema, funcData, "{ message }", "", map[string]interface{}{"message": "hi"}},
	"List":          {listSchema, struct{ Values []int }{[]int{1, 2, 3}}, "{ values }", "", map[string]interface{}{"values": []interface{}{1.0, 2.0, 3.0}}},
	"NilList":       {listSchema, struct{ Values []int }{}, "{ values }", "", map[string]interface{}{"values": nil}},
	"Array":         {listSchema, struct{ Values [2]int }{[2]int{7, 8}}, "{ values }", "", map[string]interface{}{"values": []interface{}{7.0, 8.0}}},
	"Nested":        {nestedSchema, nestedData, "{ n { p q } }", "", map[string]interface{}{"n": map[string]interface{}{"p": false, "q": true}}},
	"Args":          {argsSchema, argsData, "{ dbl(v: 21) }", "", map[string]interface{}{"dbl": 42.0}},
	"Args2":         {args2Schema, args2Data, `{ f(s: "a", i: 1) }`, "", map[string]interface{}{"f": "a1"}},
	"Default":       {defaultSchema, args2Data, "{ f(i: 2) }", "", map[string]interface{}{"f": "xyz2"}},
	"DefaultVar":    {defaultSchema, args2Data, `query($s: String! = "def") { f(i: 3, s: $s) }`, "", map[string]interface{}{"f": "def3"}},
	"Variables":     {argsSchema, argsData, "query($v: Int!) { dbl(v: $v) }", `{"v": 5}`, map[string]interface{}{"dbl": 10.0}},
	"NullArg":       {nullableSchema, nullableData, "{ greet }", "", map[string]interface{}{"greet": "hello stranger"}},
	"NullArg2":      {nullableSchema, nullableData, "{ greet(name: null) }", "", map[string]interface{}{"greet": "hello stranger"}},
	"NonNullArg":    {nullableSchema, nullableData, `{ greet(name: "Ann") }`, "", map[string]interface{}{"greet": "hello Ann"}},
	"NullArgVar":    {nullableSchema, nullableData, "query($n: String) { greet(name: $n) }", `{"n": "Bob"}`, map[string]interface{}{"greet": "hello Bob"}},
	"InputObject":   {inputArgSchema, inputArgData, `{ q(p: {s: "x", f: 1.5}) }`, "", map[string]interface{}{"q": "x1.5"}},
	"InputVar":      {inputArgSchema, inputArgData, `query($p: R!) { q(p: $p) }`, `{"p": {"s": "y", "f": 2.25}}`, map[string]interface{}{"q": "y2.25"}},
	"InputIntFloat": {inputArgSchema, inputArgData, `query($p: R!) { q(p: $p) }`, `{"p": {"s": "z", "f": 2}}`, map[string]interface{}{"q": "z2"}},
	"ListArg":       {listArgSchema, listArgData, "{ sum(list: [1, 2, 3]) }", "", map[string]interface{}{"sum": 6.0}},
	"ListArgVar":    {listArgSchema, listArgData, "query($l: [Int!]!) { sum(list: $l) }", `{"l": [4, 5]}`, map[string]interface{}{"sum": 9.0}},
	"ListCoerce":    {listArgSchema, listArgData, "{ sum(list: 7) }", "", map[string]interface{}{"sum": 7.0}},
	"FloatArg":      {floatArgsSchema, floatArgsData, "{ half(v: 3) }", "", map[string]interface{}{"half": 1.5}},
	"Alias":         {argsSchema, argsData, "{ a: dbl(v: 1) b: dbl(v: 2) }", "", map[string]interface{}{"a": 2.0, "b": 4.0}},
	"Fragment":      {nestedSchema, nestedData, "{ n { ...F } } fragment F on N { q }", "", map[string]interface{}{"n": map[string]interface{}{"q": true}}},
	"Inline":        {nestedSchema, nestedData, "{ n { ... on N { p } } }", "", map[string]interface{}{"n": map[string]interface{}{"p": false}}},
	"Skip":          {nestedSchema, nestedData, "{ n { p @skip(if: true) q } }", "", map[string]interface{}{"n": map[string]interface{}{"q": true}}},
	"IncludeVar":    {nestedSchema, nestedData, "query($i: Boolean!) { n { p @include(if: $i) q } }", `{"i": false}`, map[string]interface{}{"n": map[string]interface{}{"q": true}}},
	"Typename":      {nestedSchema, nestedData, "{ __typename n { __typename } }", "", map[string]interface{}{"__typename": "Query", "n": map[string]interface{}{"__typename": "N"}}},
	"Objects": {objectsSchema, objectsData, "{ items { name id } }", "", map[string]interface{}{"items": []interface{}{
		map[string]interface{}{"name": "a", "id": "1"},
		map[string]interface{}{"name": "b", "id": "2"},
	}}},
	"NilObjects": {objectsSchema, nilItemsData, "{ items { name } }", "", map[string]interface{}{"items": []interface{}{}}},
	"ID":         {idSchema, idData, "{ id }", "", map[string]interface{}{"id": "42"}},
	"NullInt":    {nullIntSchema, nullIntData, "{ p }", "", map[string]interface{}{"p": nil}},
	"Context":    {contextSchema, contextData, "{ hasContext }", "", map[string]interface{}{"hasContext": true}},
}

func TestQuery(t *testing.T) {
	for name, testData := range happyData {
		t.Run(name, func(t *testing.T) {
			h := handler.MustNew(schema.MustLoad(name, testData.schema), testData.data, nil, nil)
			result := execute(t, h, testData.query, testData.variables)

			// Check that the resulting GraphQL result (error and data)
			Assertf(t, result.Errors == nil, "Expected no error and got %v", result.Errors)
			Assertf(t, reflect.DeepEqual(result.Data, testData.expected), "Expected %v, got %v", testData.expected, result.Data)
		})
	}
}

// TestOperationName checks that the operation to execute is chosen using operationName
func TestOperationName(t *testing.T) {
	h := handler.MustNew(schema.MustLoad("opName", argsSchema), argsData, nil, nil)
	for opName, expected := range map[string]interface{}{
		"A": map[string]interface{}{"a": 10.0},
		"B": map[string]interface{}{"b": 12.0},
	} {
		body := `{"query":"query A { a: dbl(v: 5) } query B { b: dbl(v: 6) }","operationName":"` + opName + `"}`
		writer := httptest.NewRecorder()
		h.ServeHTTP(writer, httptest.NewRequest("POST", "/", strings.NewReader(body)))
		var result gqlResponse
		if err := json.Unmarshal(writer.Body.Bytes(), &result); err != nil {
			t.Fatalf("Error decoding JSON: %v", err)
		}
		Assertf(t, result.Errors == nil, "%s: expected no errors got %v", opName, result.Errors)
		Assertf(t, reflect.DeepEqual(result.Data, expected), "%s: expected %v got %v", opName, expected, result.Data)
	}
}

// TestConcurrentQuery checks that query root fields are resolved in parallel (unless the NoConcurrency option is used)
func TestConcurrentQuery(t *testing.T) {
	const timeout = 2 * time.Second
	for _, noConcurrency := range []bool{false, true} {
		// each resolver waits for the other to start - this only works if they run at the same time
		var wg sync.WaitGroup
		wg.Add(2)
		wait := func() (int, error) {
			wg.Done()
			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			select {
			case <-done:
				return 1, nil
			case <-time.After(timeout / 4):
				return 0, errors.New("timed out waiting for other resolver")
			}
		}
		data := struct{ A, B func() (int, error) }{wait, wait}
		h := handler.MustNew(schema.MustLoad("concurrent", "type Query { a: Int b: Int }"), data, nil, nil,
			handler.NoConcurrency(noConcurrency))

		result := execute(t, h, "{ a b }", "")
		if noConcurrency {
			Assertf(t, len(result.Errors) == 1, "NoConcurrency: expected one resolver to time out, got %v", result.Errors)
		} else {
			Assertf(t, result.Errors == nil, "Concurrent: expected no errors got %v", result.Errors)
		}
	}
}
