// Package handler implements an HTTP handler to process GraphQL queries (and
// mutations/subscriptions) given a GraphQL schema and instances of query (and
// optionally mutation and subscription) structs whose fields are the resolvers.
package handler

// handler.go implements the handler and it's ServeHTTP method

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/andrewwphillips/library/internal/schema"
)

type (
	// Handler stores the invariants (schema and structs) used in the GraphQL requests
	Handler struct {
		schema *ast.Schema
		qData  interface{}
		mData  interface{}
		sData  interface{}

		lookup *resolverLookup

		// options
		noConcurrency  bool
		initialTimeout time.Duration
		pingFrequency  time.Duration
		pongTimeout    time.Duration
		connectionInit InitFunc
	}
)

// New returns an HTTP handler given a schema PLUS corresponding instances of query and optionally mutation and
// subscription structs (use nil if the schema has no mutation or subscription type).
// An error is returned if the structs do not provide a resolver for every field of the schema.
func New(s *ast.Schema, query, mutation, subscription interface{}, options ...func(*Handler)) (*Handler, error) {
	if err := schema.Check(s, query, mutation, subscription); err != nil {
		return nil, fmt.Errorf("handler.New: %w", err)
	}
	h := &Handler{
		schema: s,
		qData:  query,
		mData:  mutation,
		sData:  subscription,
		lookup: newResolverLookup(),
	}
	h.setOptions(options...)
	return h, nil
}

// MustNew is the same as New but panics on error
func MustNew(s *ast.Schema, query, mutation, subscription interface{}, options ...func(*Handler)) *Handler {
	h, err := New(s, query, mutation, subscription, options...)
	if err != nil {
		panic(err)
	}
	return h
}

// ServeHTTP receives a GraphQL query as an HTTP request, executes the
// query (or mutation) and generates an HTTP response or error message.
// Websocket upgrade requests are handed over to the websocket handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		h.serveWS(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	g := gqlRequest{h: h}
	switch r.Method {
	case http.MethodPost:
		decoder := json.NewDecoder(r.Body)
		decoder.UseNumber() // allows us to distinguish ints from floats (see FixNumberVariables() below)
		if err := decoder.Decode(&g); err != nil {
			writeError(w, http.StatusBadRequest, "Error decoding JSON request: "+err.Error())
			return
		}
	case http.MethodGet:
		params := r.URL.Query()
		g.Query = params.Get("query")
		g.OperationName = params.Get("operationName")
		if vars := params.Get("variables"); vars != "" {
			decoder := json.NewDecoder(strings.NewReader(vars))
			decoder.UseNumber()
			if err := decoder.Decode(&g.Variables); err != nil {
				writeError(w, http.StatusBadRequest, "Error decoding variables: "+err.Error())
				return
			}
		}
		g.queryOnly = true
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "Method "+r.Method+" not allowed")
		return
	}
	if g.Query == "" {
		writeError(w, http.StatusBadRequest, "No query in request")
		return
	}

	// Since variables are sent as JSON (which does not distinguish int/float) we need to decide
	FixNumberVariables(g.Variables)

	buf, err := json.Marshal(g.Execute(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("encoding GraphQL response")
		writeError(w, http.StatusInternalServerError, "Error encoding JSON response: "+err.Error())
		return
	}
	_, _ = w.Write(buf)
}

// writeError sends a GraphQL error response (no data) with an HTTP status code
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	buf, _ := json.Marshal(gqlResult{Errors: gqlerror.List{{Message: message}}})
	_, _ = w.Write(buf)
}

// FixNumberVariables goes through the structure created by the JSON decoder, converting any json.Number values to
// either an int64 or a float64.  This assumes that all the JSON numbers were decoded into a json.Number type, rather
// than int/float, by use of the json.Decode.UseNumber() method.
func FixNumberVariables(m map[string]interface{}) {
	for key, val := range m {
		m[key] = fixNumber(val)
	}
}

func fixNumber(val interface{}) interface{} {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String() // out of range - leave it to variable validation to reject

	case map[string]interface{}:
		FixNumberVariables(v) // recursively handle nested numbers

	case []interface{}:
		for i := range v {
			v[i] = fixNumber(v[i])
		}
	}
	return val
}
