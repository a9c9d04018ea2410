package rpc

import "fmt"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is a JSON-RPC error. Message is the only text that reaches the
// wire; Err carries internal detail for the log and never leaks to
// clients.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rpc error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an error with a client-facing message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates an error keeping err for the log while clients only
// see message.
func WrapError(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
