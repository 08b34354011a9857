package handler

// options.go handles setting of handler options

// Options are closures with the signature func(*Handler).  The option functions below (InitialTimeout, etc) return
// such a closure which captures the option value so that the handler can be modified when the closure is run
// by New().  So for example in this call:
//
//   handler.New(schema, query, mutation, subscription, handler.PingFrequency(time.Minute))
//
// handler.PingFrequency() returns a closure which sets the pingFrequency field of the handler.
// If the same option function is used more than once then only the last use has any effect.

import (
	"context"
	"time"
)

const (
	defaultInitialTimeout = 10 * time.Second // how long to wait for connection_init after the WS is opened
	defaultPingFrequency  = 20 * time.Second // how often to send a ping (ka in old protocol) message to the client
	defaultPongTimeout    = 5 * time.Second  // how long to wait for a pong after sending a ping
)

// InitFunc is called when a websocket client sends "connection_init".  It receives the connection
// context and the init payload and returns the context to use for all operations on the connection.
// Returning an error refuses the connection.
type InitFunc func(ctx context.Context, payload map[string]interface{}) (context.Context, error)

// setOptions executes the option closures then fills in defaults for anything left unset
func (h *Handler) setOptions(options ...func(*Handler)) {
	for _, option := range options {
		option(h)
	}

	if h.initialTimeout == 0 {
		h.initialTimeout = defaultInitialTimeout
	}
	if h.pingFrequency == 0 {
		h.pingFrequency = defaultPingFrequency
	}
	if h.pongTimeout == 0 {
		h.pongTimeout = defaultPongTimeout
	}
}

// NoConcurrency turns off concurrent execution of query root fields
func NoConcurrency(on bool) func(*Handler) {
	return func(h *Handler) {
		h.noConcurrency = on
	}
}

// InitialTimeout sets the length time to wait from when the websocket is opened until the
// "connection_init" message is received. If the message is not received from the client
// within the time limit then the WS is closed (4408).
func InitialTimeout(timeout time.Duration) func(*Handler) {
	return func(h *Handler) {
		h.initialTimeout = timeout
	}
}

// PingFrequency says how often to send a "ping" message (if the client connects with new
// protocol) or a "ka" (keep alive) message (old protocol)
func PingFrequency(freq time.Duration) func(*Handler) {
	return func(h *Handler) {
		h.pingFrequency = freq
	}
}

// PongTimeout sets the length time to wait for a "pong" message from the client after
// a "ping" message is sent. If the message is not received in time the WS is closed.
func PongTimeout(timeout time.Duration) func(*Handler) {
	return func(h *Handler) {
		h.pongTimeout = timeout
	}
}

// ConnectionInit sets a function to inspect the payload of the websocket "connection_init" message,
// typically used to authenticate the connection from an "authorization" entry.
func ConnectionInit(f InitFunc) func(*Handler) {
	return func(h *Handler) {
		h.connectionInit = f
	}
}
