package handler_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/andrewwphillips/library/internal/handler"
	"github.com/andrewwphillips/library/internal/schema"
)

const mutationSchema = "type Query { value: Int! } type Mutation { add(by: Int!): Int! }"

// counter is used for both the query and mutation structs, so that mutations affect later queries
type counter struct {
	mu    sync.Mutex
	value int
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *counter) add(by int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += by
	return c.value
}

func TestMutation(t *testing.T) {
	c := &counter{}
	query := struct{ Value func() int }{c.get}
	mutation := struct {
		Add func(int) int `egg:"add(by)"`
	}{c.add}
	h := handler.MustNew(schema.MustLoad("mutation", mutationSchema), query, mutation, nil)

	mutationData := map[string]struct {
		query     string
		variables string
		expected  interface{}
	}{
		// mutation root fields must run one after the other in the order given
		"Sequential": {"mutation { a: add(by: 1) b: add(by: 10) c: add(by: 100) }", "",
			map[string]interface{}{"a": 1.0, "b": 11.0, "c": 111.0}},
		"Variables": {"mutation M($by: Int!) { add(by: $by) }", `{"by": 1000}`,
			map[string]interface{}{"add": 1111.0}},
		"Query": {"{ value }", "", map[string]interface{}{"value": 1111.0}},
	}

	for _, name := range []string{"Sequential", "Variables", "Query"} {
		testData := mutationData[name]
		result := execute(t, h, testData.query, testData.variables)
		Assertf(t, result.Errors == nil, "%12s: expected no errors got %v", name, result.Errors)
		Assertf(t, reflect.DeepEqual(result.Data, testData.expected), "%12s: expected %v got %v", name, testData.expected, result.Data)
	}
}
