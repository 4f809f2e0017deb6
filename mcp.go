package mcp

import (
	"context"
	"encoding/json"
)

// Transport is the delivery mechanism underlying the protocol. Two
// implementations are provided: InProcessTransport calls a server object
// living in the same process, and StdioTransport talks newline-delimited
// JSON-RPC to a subprocess over its standard input/output. The contract is
// deliberately sufficient to add further variants (e.g. HTTP) later.
type Transport interface {
	// SendRequest allocates the next request id, transmits the request, and
	// blocks until the server's response arrives. It returns the raw result
	// payload, or an error derived from the server's error object in the
	// form "MCP error <code>: <message>".
	SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error)

	// SendNotification transmits an id-less message. It completes once the
	// message has been handed to the underlying medium; no server
	// acknowledgment is awaited.
	SendNotification(ctx context.Context, method string, params any) error

	// Close releases transport resources. It is idempotent; calling it more
	// than once must not fail.
	Close(ctx context.Context) error
}

// Handler is the in-process server boundary: a black box that receives a
// JSON-RPC request and returns a JSON-RPC response object. The returned value
// may be a JSONRPCMessage, a *JSONRPCMessage, a map[string]any holding the
// same fields, or a Deferred that settles to one of those.
type Handler interface {
	Handle(ctx context.Context, req JSONRPCMessage) any
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, req JSONRPCMessage) any

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req JSONRPCMessage) any {
	return f(ctx, req)
}

// Deferred is a response that settles later. When a Handler returns a
// Deferred, the in-process transport waits for it inline before returning to
// the caller; asynchronous tool execution is flattened to synchronous
// completion from the caller's point of view.
type Deferred interface {
	Await(ctx context.Context) (any, error)
}
