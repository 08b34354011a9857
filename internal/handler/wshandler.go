package handler

// wshandler is code for handling websockets for subscriptions.  It supports both commonly used WS protocols
// * subscriptions-transport-ws: early protocol from Apollo for subscriptions (sub-protocol name:graphql-ws)
// * graphql-ws is newer ws transport which can handle query/mutation/subscription (sub-protocol name:graphql-transport-ws).

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/andrewwphillips/library/internal/metrics"
)

const (
	protocolOld = "graphql-ws"
	protocolNew = "graphql-transport-ws"

	// close codes used by graphql-transport-ws
	closeBadRequest      = 4400
	closeUnauthorized    = 4401
	closeForbidden       = 4403
	closeInitTimeout     = 4408
	closeDuplicateID     = 4409
	closeTooManyInits    = 4429
	closeKeepAliveFailed = 4504
)

type (
	wsConnection struct {
		*websocket.Conn // handle for WS communications

		h           *Handler // we need this for the schema etc
		newProtocol bool     // default to old

		writeMu sync.Mutex // gorilla allows only one concurrent writer

		// operations keeps track of the operations running on this connection.
		// Typically, there is just one entry in the map which is the ID associated with the subscription operation.
		mu         sync.Mutex
		operations map[string]*wsOperation

		pong chan struct{} // receives a value when the client sends a pong (new protocol only)
	}

	// wsOperation is an operation (eg subscription) running on the connection
	wsOperation struct {
		cancel context.CancelFunc // terminates the operation (ie kills all subscription processing)
	}

	// wsMessage is what the client sends
	wsMessage struct {
		Type    string          `json:"type"`
		ID      string          `json:"id,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	// wsRequest is the payload of a subscribe/start message
	wsRequest struct {
		OperationName string                 `json:"operationName,omitempty"`
		Query         string                 `json:"query"`
		Variables     map[string]interface{} `json:"variables,omitempty"`
		Extensions    map[string]interface{} `json:"extensions,omitempty"`
	}

	// wsReply is what the server sends
	wsReply struct {
		Type    string      `json:"type"`
		ID      string      `json:"id,omitempty"`
		Payload interface{} `json:"payload,omitempty"`
	}
)

// errBadMessage is returned by read when a message from the client is not valid
var errBadMessage = errors.New("invalid websocket message")

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{protocolOld, protocolNew},
}

// serveWS is called in response to a GraphQL HTTP request wanting to upgrade to a WS.
// It handles subscription request(s) (and queries/mutations) and sends a stream of responses.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return // nothing else required here as w's HTTP status has already been set
	}
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	c := &wsConnection{
		Conn:        conn,
		h:           h,
		newProtocol: conn.Subprotocol() == protocolNew, // else assume it's the "old" (graphql-ws) WS sub-protocol
		operations:  make(map[string]*wsOperation, 1),
		pong:        make(chan struct{}, 1),
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()                                      // stops all operations and the keep alive
		c.closeWith(websocket.CloseNormalClosure, "") // ignored if a close message has already been sent
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("websocket close")
		}
	}()

	ctx, ok := c.init(ctx)
	if !ok {
		return
	}
	go c.keepAlive(ctx)

	for {
		message, err := c.read()
		if errors.Is(err, errBadMessage) {
			c.closeWith(closeBadRequest, "Invalid message received")
			return
		}
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket read")
			}
			return
		}

		switch message.Type {
		case "subscribe", "start":
			if !c.start(ctx, message) {
				return
			}

		case "complete", "stop":
			c.stop(message.ID)

		case "ping":
			_ = c.send(wsReply{Type: "pong"})

		case "pong":
			select {
			case c.pong <- struct{}{}:
			default:
			}

		case "connection_init":
			if c.newProtocol {
				c.closeWith(closeTooManyInits, "Too many initialisation requests")
				return
			}

		case "connection_terminate":
			return

		default:
			log.Warn().Str("type", message.Type).Msg("websocket unexpected message type")
			c.closeWith(closeBadRequest, "Unexpected message type "+message.Type)
			return
		}
	}
}

// init handles the initial (high level) handshake by receiving an "init" message and sending an "ack".
// It returns the context to be used for operations (possibly modified by the ConnectionInit option).
func (c *wsConnection) init(ctx context.Context) (context.Context, bool) {
	_ = c.SetReadDeadline(time.Now().Add(c.h.initialTimeout))
	message, err := c.read()
	if err != nil {
		var netErr interface{ Timeout() bool }
		switch {
		case errors.Is(err, errBadMessage):
			c.closeWith(closeBadRequest, "Invalid message received")
		case errors.As(err, &netErr) && netErr.Timeout():
			log.Debug().Msg("websocket connection_init timeout")
			c.closeWith(closeInitTimeout, "Connection initialisation timeout")
		}
		return ctx, false
	}
	_ = c.SetReadDeadline(time.Time{})

	if message.Type != "connection_init" {
		log.Debug().Str("type", message.Type).Msg("websocket message before connection_init")
		c.refuse(closeUnauthorized, "Unauthorized")
		return ctx, false
	}

	if c.h.connectionInit != nil {
		var payload map[string]interface{}
		if len(message.Payload) > 0 {
			if err := json.Unmarshal(message.Payload, &payload); err != nil {
				c.refuse(closeBadRequest, "Invalid connection_init payload")
				return ctx, false
			}
		}
		if ctx, err = c.h.connectionInit(ctx, payload); err != nil {
			log.Debug().Err(err).Msg("websocket connection refused")
			c.refuse(closeForbidden, err.Error())
			return ctx, false
		}
	}

	if err := c.send(wsReply{Type: "connection_ack"}); err != nil {
		return ctx, false
	}
	if !c.newProtocol {
		_ = c.send(wsReply{Type: "ka"})
	}
	return ctx, true
}

// refuse rejects the connection during initialisation in the manner of the protocol being used
func (c *wsConnection) refuse(code int, message string) {
	if c.newProtocol {
		c.closeWith(code, message)
		return
	}
	_ = c.send(wsReply{Type: "connection_error", Payload: map[string]string{"message": message}})
}

// keepAlive periodically sends a "ping" (new protocol) or "ka" (old protocol) message.  For the new protocol
// if the client does not respond with a "pong" in time the connection is closed.
func (c *wsConnection) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.h.pingFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !c.newProtocol {
			if c.send(wsReply{Type: "ka"}) != nil {
				return
			}
			continue
		}
		if c.send(wsReply{Type: "ping"}) != nil {
			return
		}
		timer := time.NewTimer(c.h.pongTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.pong:
			timer.Stop()
		case <-timer.C:
			log.Debug().Msg("websocket pong timeout")
			c.closeWith(closeKeepAliveFailed, "Pong timeout")
			_ = c.Close() // unblocks the reader
			return
		}
	}
}

// start extracts an operation from a subscribe (or start) message and starts processing it.
// Returns false if the connection is to be closed.
func (c *wsConnection) start(ctx context.Context, message *wsMessage) bool {
	if message.ID == "" {
		c.closeWith(closeBadRequest, "Operation ID missing")
		return false
	}
	var payload wsRequest
	decoder := json.NewDecoder(bytes.NewReader(message.Payload))
	decoder.UseNumber() // allows us to distinguish ints from floats in Variables map (see also FixNumberVariables())
	if err := decoder.Decode(&payload); err != nil {
		c.closeWith(closeBadRequest, "Invalid message payload")
		return false
	}
	FixNumberVariables(payload.Variables)

	// Add to our map of operations active in this ws (first checking that the ID is not in use)
	ctx, cancel := context.WithCancel(ctx)
	wsOp := &wsOperation{cancel: cancel}
	c.mu.Lock()
	if _, ok := c.operations[message.ID]; ok {
		c.mu.Unlock()
		cancel()
		log.Debug().Str("id", message.ID).Msg("websocket duplicate operation ID")
		if c.newProtocol {
			c.closeWith(closeDuplicateID, "Subscriber for "+message.ID+" already exists")
			return false
		}
		c.sendError(message.ID, gqlerror.List{gqlerror.Errorf("Subscriber for %s already exists", message.ID)})
		return true
	}
	c.operations[message.ID] = wsOp
	c.mu.Unlock()

	g := gqlRequest{h: c.h, Query: payload.Query, OperationName: payload.OperationName, Variables: payload.Variables}
	op, operation, errs := g.prepare()
	if errs != nil {
		c.done(message.ID, wsOp)
		c.sendError(message.ID, errs)
		return true
	}

	go c.process(ctx, message.ID, wsOp, op, operation)
	return true
}

// process runs an operation sending the result(s) to the client followed by "complete"
func (c *wsConnection) process(ctx context.Context, id string, wsOp *wsOperation, op *gqlOperation,
	operation *ast.OperationDefinition,
) {
	defer c.done(id, wsOp)

	if operation.Operation != ast.Subscription {
		r := op.execute(ctx, operation)
		if ctx.Err() == nil {
			c.sendResult(id, r)
			c.sendComplete(id)
		}
		return
	}

	results, failed := op.subscribe(ctx, operation)
	if failed != nil {
		c.sendResult(id, *failed)
		c.sendComplete(id)
		return
	}
	for r := range results {
		if c.sendResult(id, r) != nil {
			return
		}
	}
	if ctx.Err() == nil {
		c.sendComplete(id) // the source closed (rather than the client stopping it)
	}
}

// stop kills processing of one operation (eg subscription) by calling the cancel function of the operation's context
func (c *wsConnection) stop(id string) {
	c.mu.Lock()
	wsOp, ok := c.operations[id]
	delete(c.operations, id)
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("id", id).Msg("websocket operation not found or already stopped")
		return
	}
	wsOp.cancel()
}

// done removes an operation from the map (unless it has been replaced) and releases its context
func (c *wsConnection) done(id string, wsOp *wsOperation) {
	c.mu.Lock()
	if c.operations[id] == wsOp {
		delete(c.operations, id)
	}
	c.mu.Unlock()
	wsOp.cancel()
}

func (c *wsConnection) sendResult(id string, r gqlResult) error {
	messageType := "next"
	if !c.newProtocol {
		messageType = "data"
	}
	return c.send(wsReply{Type: messageType, ID: id, Payload: r})
}

func (c *wsConnection) sendError(id string, errs gqlerror.List) {
	if c.newProtocol {
		_ = c.send(wsReply{Type: "error", ID: id, Payload: errs})
		return
	}
	// subscriptions-transport-ws sends validation errors as a result followed by complete
	_ = c.sendResult(id, gqlResult{Errors: errs})
	c.sendComplete(id)
}

func (c *wsConnection) sendComplete(id string) {
	_ = c.send(wsReply{Type: "complete", ID: id})
}

// send writes a message as JSON making sure that only one goroutine writes at a time
func (c *wsConnection) send(reply wsReply) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.WriteJSON(reply); err != nil {
		log.Debug().Err(err).Str("type", reply.Type).Msg("websocket write")
		return err
	}
	return nil
}

// closeWith sends a close message with a code and reason
func (c *wsConnection) closeWith(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func (c *wsConnection) read() (*wsMessage, error) {
	_, buf, err := c.ReadMessage()
	if err != nil {
		return nil, err
	}
	var message wsMessage
	if err := json.Unmarshal(buf, &message); err != nil || message.Type == "" {
		return nil, errBadMessage
	}
	return &message, nil
}
