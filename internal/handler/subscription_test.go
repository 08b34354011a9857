package handler_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/posener/wstest"

	"github.com/andrewwphillips/library/internal/handler"
	"github.com/andrewwphillips/library/internal/schema"
)

type wsActionType int

const (
	actionSend  wsActionType = iota // send WS message: data == message as JSON (string)
	actionRecv                      // receive WS message: data == relevant part of the expected message (string)
	actionError                     // WS close message: data == close code (int)
	actionPause                     // sleep for a short time: data == milliseconds (int)
)

type (
	wsAction struct {
		action wsActionType
		data   interface{}
	}
)

const subscriptionSchema = `
type Query { ok: Boolean! }
type Subscription { message: String! countdown(from: Int!): Int! fail: Int! }`

// TestSubscriptions has a table of tests each of which tests a subscriptions scenario
func TestSubscriptions(t *testing.T) {
	subscriptionData := map[string]struct {
		delay                                      time.Duration // time between "hello" messages from the server (0 for no delay)
		protocol                                   string        // which WS subprotocol to use == "graphql-transport-ws" (new) or "graphql-ws" (old)
		initialTimeout, pingFrequency, pongTimeout time.Duration
		actions                                    []wsAction // list of actions to take
	}{
		"empty": {actions: []wsAction{}},
		"basic_old": {
			delay: time.Second,
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionRecv, `"ka"`},
				{actionSend, `{"type":"start","id":"ID-1","payload":{"query":"subscription {message}"}}`},
				{actionRecv, `{"type":"data","id":"ID-1","payload":{"data":{"message":"hello"}}}`},
				{actionSend, `{"type":"stop","id":"ID-1"}`},
				{actionSend, `{"type": "connection_terminate"}`},
				{actionError, websocket.CloseNormalClosure},
			},
		},
		"init_bad": {
			actions: []wsAction{
				{actionSend, `bad`},
				{actionError, 4400},
			},
		},
		"init_term": {
			// can send connection_terminate instead of connection_init
			actions: []wsAction{
				{actionSend, `{"type": "connection_terminate"}`},
				{actionRecv, `"connection_error"`},
			},
		},
		"init_start": {
			actions: []wsAction{
				{actionSend, `{"type": "start"}`},
				{actionRecv, `"connection_error"`},
			},
		},
		"init_timeout": {
			initialTimeout: 10 * time.Millisecond,
			protocol:       "graphql-transport-ws",
			actions: []wsAction{
				{actionError, 4408},
			},
		},
		"2nd_ka": {
			pingFrequency: 5 * time.Millisecond,
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionRecv, `"ka"`},
				{actionRecv, `"ka"`},
				{actionPause, 20},
			},
		},
		"dupe_ID": {
			delay: 500 * time.Millisecond,
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionRecv, `"ka"`},
				{actionSend, `{"type":"start","id":"x","payload":{"query":"subscription {message}"}}`},
				{actionRecv, `{"type":"data","id":"x","payload":{"data":{"message":"hello"}}}`},
				{actionSend, `{"type":"start","id":"x","payload":{"query":"subscription {message}"}}`},
				{actionRecv, `Subscriber for x already exists`},
			},
		},
		"countdown_old": {
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionRecv, `"ka"`},
				{actionSend, `{"type":"start","id":"c","payload":{"query":"subscription {countdown(from: 2)}"}}`},
				{actionRecv, `{"type":"data","id":"c","payload":{"data":{"countdown":2}}}`},
				{actionRecv, `{"type":"data","id":"c","payload":{"data":{"countdown":1}}}`},
				{actionRecv, `{"type":"complete","id":"c"}`},
			},
		},
		// Using new sub-protocol -----------------
		"basic_new": {
			delay: time.Second, protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"subscribe","id":"ID-3","payload":{"query":"subscription {message}"}}`},
				{actionRecv, `{"type":"next","id":"ID-3","payload":{"data":{"message":"hello"}}}`},
				{actionSend, `{"type":"complete","id":"ID-3"}`},
				{actionSend, `{"type":"ping"}`},
				{actionRecv, `{"type":"pong"}`}, // no "complete" after the client completes
			},
		},
		"countdown_new": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"subscribe","id":"c","payload":{"query":"subscription C($n: Int!) {c: countdown(from: $n)}","variables":{"n":1}}}`},
				{actionRecv, `{"type":"next","id":"c","payload":{"data":{"c":1}}}`},
				{actionRecv, `{"type":"complete","id":"c"}`},
			},
		},
		"query_new": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"subscribe","id":"q","payload":{"query":"{ ok }"}}`},
				{actionRecv, `{"type":"next","id":"q","payload":{"data":{"ok":true}}}`},
				{actionRecv, `{"type":"complete","id":"q"}`},
			},
		},
		"source_error": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"subscribe","id":"f","payload":{"query":"subscription { fail }"}}`},
				{actionRecv, `"message":"no source"`},
				{actionRecv, `{"type":"complete","id":"f"}`},
			},
		},
		"start_not_subscribe": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"begin","id":"ID-4","payload":{"query":"subscription {message}"}}`},
				{actionError, 4400}, // unexpected message type
			},
		},
		"subscribe_before_init": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type":"subscribe","id":"ID-4","payload":{"query":"subscription {message}"}}`},
				{actionError, 4401},
			},
		},
		"double_init": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type": "connection_init"}`},
				{actionError, 4429}, // too many init requests
			},
		},
		"no_payload": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"subscribe","id":"ID-5"}`},
				{actionError, 4400},
			},
		},
		"bad_query": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"subscribe","id":"ID-6","payload":{"query":"bad"}}`},
				{actionRecv, `{"type":"error","id":"ID-6"`}, // Unexpected name "bad"
				{actionSend, `{"type":"ping"}`},
				{actionRecv, `{"type":"pong"}`}, // connection is still usable
			},
		},
		"bad_vars": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{
					actionSend,
					`{"type":"subscribe","id":"ID-8","payload":{"query":"subscription {message}", "variables":"bad"}}`,
				},
				{actionError, 4400}, // JSON error unmarshall struct
			},
		},
		"dupe_id_new": {
			delay:    500 * time.Millisecond,
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"subscribe","id":"dupe","payload":{"query":"subscription {message}"}}`},
				{actionRecv, `{"type":"next","id":"dupe","payload":{"data":{"message":"hello"}}}`},
				{actionSend, `{"type":"subscribe","id":"dupe","payload":{"query":"subscription {message}"}}`},
				{actionError, 4409}, // Subscriber for dupe already exists
			},
		},
		"reuse_id": {
			delay:    500 * time.Millisecond,
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"subscribe","id":"r","payload":{"query":"subscription {message}"}}`},
				{actionRecv, `{"type":"next","id":"r","payload":{"data":{"message":"hello"}}}`},
				{actionSend, `{"type":"complete","id":"r"}`},
				{actionPause, 10},
				{actionSend, `{"type":"subscribe","id":"r","payload":{"query":"subscription {message}"}}`},
				{actionRecv, `{"type":"next","id":"r","payload":{"data":{"message":"hello"}}}`},
			},
		},
		"send_ping": {
			protocol: "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionSend, `{"type":"ping"}`},
				{actionRecv, `"type":"pong"`},
			},
		},
		"reply_pong": {
			protocol:      "graphql-transport-ws",
			pingFrequency: 5 * time.Millisecond,
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionRecv, `"type":"ping"`},
				{actionSend, `{"type":"pong"}`},
				{actionRecv, `"type":"ping"`},
			},
		},
		"no_pong": {
			pingFrequency: 100 * time.Millisecond, // bigger than pongTimeout to ensure we get the error before 2nd ping
			pongTimeout:   2 * time.Millisecond,
			protocol:      "graphql-transport-ws",
			actions: []wsAction{
				{actionSend, `{"type": "connection_init"}`},
				{actionRecv, `"connection_ack"`},
				{actionRecv, `"type":"ping"`},
				{actionError, 4504},
			},
		},
	}

	for name, data := range subscriptionData {
		n, d := name, data
		t.Run(n, func(t *testing.T) {
			t.Parallel()
			h := getHandler(d.delay, handler.InitialTimeout(d.initialTimeout), handler.PingFrequency(d.pingFrequency),
				handler.PongTimeout(d.pongTimeout))
			conn := dial(t, h, d.protocol)
			defer conn.Close()

			for i, a := range d.actions {
				switch a.action {
				case actionSend:
					err2 := conn.WriteMessage(websocket.TextMessage, []byte(a.data.(string)))
					Assertf(t, err2 == nil, "%12s: write (%d) expected no error, got %v", n, i, err2)
				case actionRecv:
					_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
					messageType, p, err2 := conn.ReadMessage()
					Assertf(t, err2 == nil, "%12s: read (%d) expected no error, got %v", n, i, err2)
					Assertf(t, messageType == websocket.TextMessage, "%12s: read (%d) expected to read text message type got %d", n, i, messageType)
					toFind := a.data.(string)
					Assertf(t, strings.Contains(string(p), toFind), "%12s: read (%d) expected message containing <%s>, got <%s>", n, i, toFind, string(p))
				case actionError:
					_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
					_, _, err2 := conn.ReadMessage() // expecting an error so ignore the message
					var got *websocket.CloseError
					if errors.As(err2, &got) {
						Assertf(t, got.Code == a.data.(int), "%12s: read (%d) expected close code %d, got %d (error %v)", n, i, a.data.(int), got.Code, err2)
					} else {
						Assertf(t, false, "%12s: read (%d) expected close error %d, got %v", n, i, a.data.(int), err2)
					}
				case actionPause:
					time.Sleep(time.Duration(a.data.(int)) * time.Millisecond)
				}
			}
		})
	}
}

// TestConnectionInit checks that the connection_init payload is passed to the ConnectionInit option and that
// the returned context is used for operations
func TestConnectionInit(t *testing.T) {
	type key struct{}
	init := handler.ConnectionInit(func(ctx context.Context, payload map[string]interface{}) (context.Context, error) {
		if payload["authorization"] != "letmein" {
			return nil, errors.New("Forbidden")
		}
		return context.WithValue(ctx, key{}, "yes"), nil
	})
	query := struct {
		Ok func(context.Context) bool
	}{func(ctx context.Context) bool { return ctx.Value(key{}) == "yes" }}
	h := handler.MustNew(schema.MustLoad("init", "type Query { ok: Boolean! }"), query, nil, nil, init)

	initData := map[string]struct {
		protocol string
		payload  string
		expect   string // expected message after init (or empty if a close code is expected)
		expCode  int
	}{
		"AcceptedNew": {"graphql-transport-ws", `{"authorization":"letmein"}`, `connection_ack`, 0},
		"AcceptedOld": {"graphql-ws", `{"authorization":"letmein"}`, `connection_ack`, 0},
		"RefusedNew":  {"graphql-transport-ws", `{"authorization":"wrong"}`, ``, 4403},
		"RefusedOld":  {"graphql-ws", `{}`, `connection_error`, 0},
	}
	for name, testData := range initData {
		conn := dial(t, h, testData.protocol)
		err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"connection_init","payload":`+testData.payload+`}`))
		Assertf(t, err == nil, "%12s: expected no write error got %v", name, err)

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, p, err := conn.ReadMessage()
		if testData.expCode != 0 {
			var closeErr *websocket.CloseError
			Assertf(t, errors.As(err, &closeErr) && closeErr.Code == testData.expCode, "%12s: expected close %d got %v",
				name, testData.expCode, err)
			_ = conn.Close()
			continue
		}
		Assertf(t, err == nil && strings.Contains(string(p), testData.expect), "%12s: expected %s got %s (%v)",
			name, testData.expect, p, err)

		if testData.expect == "connection_ack" && testData.protocol == "graphql-transport-ws" {
			// the context from ConnectionInit is passed to resolvers
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","id":"1","payload":{"query":"{ ok }"}}`))
			_, p, err = conn.ReadMessage()
			Assertf(t, err == nil && strings.Contains(string(p), `{"ok":true}`), "%12s: expected ok got %s (%v)", name, p, err)
		}
		_ = conn.Close()
	}
}

// dial opens a websocket to the handler without the need for a network listener
func dial(t *testing.T, h http.Handler, protocol string) *websocket.Conn {
	t.Helper()
	header := make(http.Header)
	if protocol != "" {
		header.Add("Sec-WebSocket-Protocol", protocol)
	}
	conn, resp, err := wstest.NewDialer(h).Dial("ws://example.com/graphql", header)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn
}

// getHandler creates a simple GraphQL handler that keeps sending "hello" messages for a "message" subscription
func getHandler(delay time.Duration, options ...func(*handler.Handler)) *handler.Handler {
	subscription := struct {
		Message   func(context.Context) <-chan string
		Countdown func(context.Context, int) <-chan int `egg:"countdown(from)"`
		Fail      func() (<-chan int, error)
	}{
		Message: func(ctx context.Context) <-chan string {
			ch := make(chan string)
			go func() {
				defer close(ch)
				for {
					select {
					case <-ctx.Done():
						return
					case ch <- "hello":
						if delay > 0 {
							time.Sleep(delay)
						}
					}
				}
			}()
			return ch
		},
		Countdown: func(ctx context.Context, from int) <-chan int {
			ch := make(chan int)
			go func() {
				defer close(ch)
				for i := from; i > 0; i-- {
					select {
					case <-ctx.Done():
						return
					case ch <- i:
					}
				}
			}()
			return ch
		},
		Fail: func() (<-chan int, error) { return nil, errors.New("no source") },
	}
	return handler.MustNew(schema.MustLoad("subscription", subscriptionSchema),
		struct{ Ok bool }{true}, nil, subscription, options...)
}
