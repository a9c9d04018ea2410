package rpc

import (
	"context"
	"encoding/json"

	"lightning-gateway/pkg/logger"

	"go.uber.org/zap"
)

// Handler serves one method. Returning resultHandled tells the dispatcher
// the handler already wrote its own reply (streaming methods do this
// before they start emitting notifications).
type Handler func(ctx context.Context, c *Conn, req *Request) (interface{}, *Error)

// resultHandled marks replies written inside the handler.
var resultHandled = new(struct{})

type methodEntry struct {
	handler Handler
	// preAuth methods skip the session check; authenticate is the only
	// one.
	preAuth bool
}

// Dispatcher routes inbound frames to an explicit registration table.
type Dispatcher struct {
	methods map[string]methodEntry
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{methods: make(map[string]methodEntry)}
}

// Register adds a method requiring an authenticated session.
func (d *Dispatcher) Register(name string, handler Handler) {
	d.methods[name] = methodEntry{handler: handler}
}

// RegisterPreAuth adds a method callable before authentication.
func (d *Dispatcher) RegisterPreAuth(name string, handler Handler) {
	d.methods[name] = methodEntry{handler: handler, preAuth: true}
}

// Dispatch validates and executes one frame, returning the reply or nil
// when none is owed. Validation order: the frame parses, the version is
// "2.0", the method is registered, the session is live. Violations answer
// with the standard codes and leave the connection open.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, frame []byte) *Response {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return errorResponse(nil, WrapError(CodeParseError, "Parse error", err))
	}

	if req.Jsonrpc != "2.0" {
		return d.reply(&req, errorResponse(req.ID, NewError(CodeInvalidRequest, "Invalid request")))
	}

	entry, ok := d.methods[req.Method]
	if !ok {
		return d.reply(&req, errorResponse(req.ID, NewError(CodeMethodNotFound, "Method not found")))
	}

	if !entry.preAuth {
		if err := c.session.CheckAuth(); err != nil {
			return d.reply(&req, errorResponse(req.ID, err))
		}
	}

	result, rpcErr := entry.handler(ctx, c, &req)
	if rpcErr != nil {
		logger.Warn("Method failed",
			zap.String("conn_id", c.id),
			zap.String("method", req.Method),
			zap.Int("code", rpcErr.Code),
			zap.Error(rpcErr))
		return d.reply(&req, errorResponse(req.ID, rpcErr))
	}
	if result == resultHandled {
		return nil
	}
	return d.reply(&req, resultResponse(req.ID, result))
}

// reply drops responses owed to notifications.
func (d *Dispatcher) reply(req *Request, resp *Response) *Response {
	if req.IsNotification() {
		return nil
	}
	return resp
}
