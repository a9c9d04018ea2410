package rpc

import (
	"encoding/json"
	"fmt"
)

// Request is an inbound JSON-RPC 2.0 envelope. A nil ID marks a
// notification: it is executed but never answered.
type Request struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is an outbound JSON-RPC 2.0 reply. Exactly one of Result and
// Error is set. A nil ID marshals as null, which is what parse errors
// answer with.
type Response struct {
	Jsonrpc string
	Result  interface{}
	Error   *wireError
	ID      json.RawMessage
}

// MarshalJSON picks the wire shape by kind: success replies always carry
// the result member, even when the result is null; error replies never do.
func (r *Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			Jsonrpc string          `json:"jsonrpc"`
			Error   *wireError      `json:"error"`
			ID      json.RawMessage `json:"id"`
		}{r.Jsonrpc, r.Error, r.ID})
	}
	return json.Marshal(struct {
		Jsonrpc string          `json:"jsonrpc"`
		Result  interface{}     `json:"result"`
		ID      json.RawMessage `json:"id"`
	}{r.Jsonrpc, r.Result, r.ID})
}

func resultResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{Jsonrpc: "2.0", Result: result, ID: id}
}

func errorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{
		Jsonrpc: "2.0",
		Error:   &wireError{Code: err.Code, Message: err.Message},
		ID:      id,
	}
}

// Notification is a server-initiated frame; it never carries an id.
type Notification struct {
	Jsonrpc string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// unmarshalParams decodes params into dests. Positional arrays assign in
// order; objects assign by the corresponding key. Missing or mistyped
// values yield an invalid-params error.
func unmarshalParams(raw json.RawMessage, keys []string, dests ...interface{}) *Error {
	if len(keys) != len(dests) {
		panic("unmarshalParams: keys and dests length mismatch")
	}
	if len(raw) == 0 {
		return NewError(CodeInvalidParams, "Invalid params")
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return WrapError(CodeInvalidParams, "Invalid params", err)
		}
		if len(items) != len(dests) {
			return WrapError(CodeInvalidParams, "Invalid params",
				fmt.Errorf("expected %d params, got %d", len(dests), len(items)))
		}
		for i, item := range items {
			if err := json.Unmarshal(item, dests[i]); err != nil {
				return WrapError(CodeInvalidParams, "Invalid params", err)
			}
		}
		return nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return WrapError(CodeInvalidParams, "Invalid params", err)
		}
		for i, key := range keys {
			value, ok := fields[key]
			if !ok {
				return WrapError(CodeInvalidParams, "Invalid params",
					fmt.Errorf("missing param %q", key))
			}
			if err := json.Unmarshal(value, dests[i]); err != nil {
				return WrapError(CodeInvalidParams, "Invalid params", err)
			}
		}
		return nil
	default:
		return NewError(CodeInvalidParams, "Invalid params")
	}
}
