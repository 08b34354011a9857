package handler

// execute.go handles the execution of a GraphQL request

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/andrewwphillips/library/internal/metrics"
)

type (
	// gqlRequest decodes and handles each GraphQL request
	gqlRequest struct {
		h *Handler

		// These are decoded from the http request body (JSON)
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`

		queryOnly bool // set for GET requests which must not change anything
	}

	// gqlResult contains the result (or errors) of the request to be encoded in JSON
	gqlResult struct {
		Data   interface{}   `json:"data,omitempty"`
		Errors gqlerror.List `json:"errors,omitempty"`
	}
)

// nullData is used for the data of a result when a non-null error propagated all the way to the root
var nullData = json.RawMessage("null")

// prepare parses and validates the request and works out which operation to run and its variables
func (g *gqlRequest) prepare() (*gqlOperation, *ast.OperationDefinition, gqlerror.List) {
	query, errs := gqlparser.LoadQuery(g.h.schema, g.Query)
	if errs != nil {
		return nil, nil, errs
	}

	operation := query.Operations.ForName(g.OperationName)
	if operation == nil {
		if g.OperationName == "" {
			return nil, nil, gqlerror.List{gqlerror.Errorf("operationName is required when there is more than one operation")}
		}
		return nil, nil, gqlerror.List{gqlerror.Errorf("operation %q not found", g.OperationName)}
	}

	op := &gqlOperation{Handler: g.h}
	vars, err := validator.VariableValues(g.h.schema, operation, g.Variables)
	if err != nil {
		return nil, nil, gqlerror.List{toGQLError(err)}
	}
	op.variables = vars
	return op, operation, nil
}

// Execute parses and runs a query or mutation request and returns the result
func (g *gqlRequest) Execute(ctx context.Context) gqlResult {
	op, operation, errs := g.prepare()
	if errs != nil {
		metrics.Operations.WithLabelValues("invalid", metrics.Status(true)).Inc()
		return gqlResult{Errors: errs}
	}
	switch {
	case operation.Operation == ast.Subscription:
		return gqlResult{Errors: gqlerror.List{gqlerror.Errorf("subscriptions must be sent over a websocket")}}
	case operation.Operation == ast.Mutation && g.queryOnly:
		return gqlResult{Errors: gqlerror.List{gqlerror.Errorf("mutations must be sent with POST")}}
	}
	return op.execute(ctx, operation)
}

// execute runs a query or mutation operation
func (op *gqlOperation) execute(ctx context.Context, operation *ast.OperationDefinition) (r gqlResult) {
	opType := string(operation.Operation)
	start := time.Now()
	defer func() {
		metrics.Operations.WithLabelValues(opType, metrics.Status(len(r.Errors) > 0)).Inc()
		metrics.OperationDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}()

	if operation.Operation == ast.Mutation {
		r.Data = op.run(ctx, operation, op.mData, false) // mutations are run sequentially
	} else {
		r.Data = op.run(ctx, operation, op.qData, !op.noConcurrency)
	}
	r.Errors = op.errors
	return
}

// run resolves the selections of the root type of an operation using the corresponding resolver struct
func (op *gqlOperation) run(ctx context.Context, operation *ast.OperationDefinition, data interface{}, concurrent bool) interface{} {
	def := op.rootDefinition(operation.Operation)
	result, ok := op.getSelections(ctx, operation.SelectionSet, structValue(data), def, nil, concurrent)
	if !ok {
		return nullData
	}
	return result
}

// subscribe starts a subscription operation returning a channel of results, one per value sent on the
// resolver's channel.  The returned channel is closed when the resolver channel closes or ctx is done.
// If the subscription cannot be started then a (non-nil) result with the error(s) is returned instead.
func (op *gqlOperation) subscribe(ctx context.Context, operation *ast.OperationDefinition) (<-chan gqlResult, *gqlResult) {
	def := op.rootDefinition(ast.Subscription)
	fields := op.collectFields(operation.SelectionSet, def)
	if len(fields) != 1 {
		return nil, &gqlResult{Errors: gqlerror.List{gqlerror.Errorf("a subscription must select exactly one root field")}}
	}
	astField := fields[0].field
	path := ast.Path{ast.PathName(fields[0].alias)}

	ch, err := op.subscriptionSource(ctx, astField, structValue(op.sData))
	if err != nil {
		op.addError(err, astField, path)
		metrics.Operations.WithLabelValues(string(ast.Subscription), metrics.Status(true)).Inc()
		return nil, &gqlResult{Data: nullData, Errors: op.errors}
	}
	metrics.Operations.WithLabelValues(string(ast.Subscription), metrics.Status(false)).Inc()

	out := make(chan gqlResult)
	go func() {
		defer close(out)
		for {
			v, ok := recvValue(ctx, ch)
			if !ok {
				return
			}
			// each event is completed with its own error list
			ev := &gqlOperation{Handler: op.Handler, variables: op.variables}
			var r gqlResult
			if value, ok := ev.completeValue(ctx, astField, astField.Definition.Type, v, path); ok {
				r.Data = newOrdered([]string{fields[0].alias}, []interface{}{value})
			} else {
				r.Data = nullData
			}
			r.Errors = ev.errors
			select {
			case out <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// rootDefinition returns the schema type for the root of an operation
func (op *gqlOperation) rootDefinition(operation ast.Operation) *ast.Definition {
	switch operation {
	case ast.Mutation:
		return op.schema.Mutation
	case ast.Subscription:
		return op.schema.Subscription
	}
	return op.schema.Query
}

// toGQLError converts an error from the parser/validator into a *gqlerror.Error
func toGQLError(err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	return gqlerror.Errorf("%s", err.Error())
}
