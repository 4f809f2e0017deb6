package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// InProcessTransport adapts a direct call into a server object living in the
// same process to the Transport contract. Requests are dispatched to the
// wrapped Handler synchronously; if the handler performs asynchronous work
// and returns a Deferred, the transport waits for it inline. This is a
// deliberate, documented blocking point confined to this one code path.
type InProcessTransport struct {
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	nextID int64
}

// InProcessOption configures an InProcessTransport.
type InProcessOption func(*InProcessTransport)

// WithInProcessLogger sets the logger used for transport diagnostics.
func WithInProcessLogger(logger *slog.Logger) InProcessOption {
	return func(t *InProcessTransport) {
		t.logger = logger
	}
}

// NewInProcessTransport creates a transport that dispatches requests directly
// to handler.
func NewInProcessTransport(handler Handler, options ...InProcessOption) *InProcessTransport {
	t := &InProcessTransport{
		handler: handler,
		logger:  slog.Default(),
		nextID:  1,
	}
	for _, opt := range options {
		opt(t)
	}
	t.logger = t.logger.With(slog.String("transport", "inprocess"), slog.String("session", uuid.New().String()))
	return t
}

// SendRequest builds a JSON-RPC request with a fresh id, invokes the handler,
// and returns the result payload from its response. A Deferred return value
// is awaited before the response is examined.
func (t *InProcessTransport) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	msg, err := t.newMessage(method, params, true)
	if err != nil {
		return nil, err
	}

	res := t.handler.Handle(ctx, msg)

	if d, ok := res.(Deferred); ok {
		res, err = d.Await(ctx)
		if err != nil {
			return nil, fmt.Errorf("MCP async tool error: %v", err)
		}
	}

	resMsg, err := coerceResponse(res)
	if err != nil {
		return nil, err
	}

	if resMsg.Error != nil {
		return nil, *resMsg.Error
	}
	return resMsg.Result, nil
}

// SendNotification invokes the handler with an id-less message and discards
// whatever it returns.
func (t *InProcessTransport) SendNotification(ctx context.Context, method string, params any) error {
	msg, err := t.newMessage(method, params, false)
	if err != nil {
		return err
	}
	t.handler.Handle(ctx, msg)
	return nil
}

// Close is a no-op; there is no external resource to release.
func (t *InProcessTransport) Close(_ context.Context) error {
	return nil
}

func (t *InProcessTransport) newMessage(method string, params any, withID bool) (JSONRPCMessage, error) {
	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}

	if params != nil {
		paramsBs, err := json.Marshal(params)
		if err != nil {
			return JSONRPCMessage{}, fmt.Errorf("failed to marshal params: %w", err)
		}
		msg.Params = paramsBs
	}

	if withID {
		t.mu.Lock()
		id := t.nextID
		t.nextID++
		t.mu.Unlock()
		msg.ID = &id
	}

	return msg, nil
}

// coerceResponse validates the handler's return value and normalizes it into
// a JSONRPCMessage. A nil return means the server produced no response at
// all; anything that is not a structured response object is rejected.
func coerceResponse(res any) (JSONRPCMessage, error) {
	switch v := res.(type) {
	case nil:
		return JSONRPCMessage{}, errors.New("No response from MCP server")
	case JSONRPCMessage:
		return v, nil
	case *JSONRPCMessage:
		if v == nil {
			return JSONRPCMessage{}, errors.New("No response from MCP server")
		}
		return *v, nil
	case map[string]any:
		bs, err := json.Marshal(v)
		if err != nil {
			return JSONRPCMessage{}, errors.New("Invalid response from MCP server")
		}
		var msg JSONRPCMessage
		if err := json.Unmarshal(bs, &msg); err != nil {
			return JSONRPCMessage{}, errors.New("Invalid response from MCP server")
		}
		return msg, nil
	default:
		return JSONRPCMessage{}, errors.New("Invalid response from MCP server")
	}
}
