// Package lightning talks JSON-RPC to a Core Lightning node over its unix
// socket. The node terminates each reply with a blank line, so requests are
// written as a single JSON line and replies are read up to the first
// non-empty line.
package lightning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"lightning-gateway/pkg/logger"

	"go.uber.org/zap"
)

var (
	// ErrInvoiceNotFound is returned when a label matches no invoice on
	// the node.
	ErrInvoiceNotFound = errors.New("invoice not found on node")
	// ErrNodeWarning is returned when invoice creation succeeded but the
	// node attached a warning (for example insufficient inbound capacity).
	// Such invoices are treated as unusable.
	ErrNodeWarning = errors.New("node returned a warning")
)

// Config holds the node connection settings.
type Config struct {
	SocketPath string
	// CallTimeout bounds a single RPC call including the one retry.
	CallTimeout time.Duration
}

// CreatedInvoice is the node's answer to an invoice request.
type CreatedInvoice struct {
	Bolt11      string `json:"bolt11"`
	ExpiresAt   int64  `json:"expires_at"`
	PaymentHash string `json:"payment_hash"`
}

// Client is a Core Lightning JSON-RPC client. Each call dials a fresh
// connection; the socket protocol has no multiplexing, and invoice traffic
// is low enough that connection reuse is not worth the bookkeeping.
type Client struct {
	cfg    Config
	nextID atomic.Int64
}

// NewClient creates a node client for the unix socket at cfg.SocketPath.
func NewClient(cfg Config) *Client {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Client{cfg: cfg}
}

type rpcRequest struct {
	Jsonrpc string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// call performs one RPC against the node, retrying once after a short pause
// on any failure. Transient socket errors during node restarts are common
// enough that a single retry saves most calls.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	result, err := c.callOnce(ctx, method, params)
	if err == nil {
		return result, nil
	}

	logger.Warn("Node call failed, retrying",
		zap.String("method", method), zap.Error(err))

	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}

	result, err = c.callOnce(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return result, nil
}

func (c *Client) callOnce(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := rpcRequest{
		Jsonrpc: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	line, err := readReply(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("node error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// readReply reads up to the first non-empty line. The node sends the reply
// JSON on one line followed by a blank line, which the next dial discards
// with the connection.
func readReply(conn net.Conn) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if i := indexNewline(buf); i >= 0 {
			line := buf[:i]
			if len(line) > 0 {
				return line, nil
			}
			buf = buf[i+1:]
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}

type invoiceParams struct {
	AmountMsat  int64  `json:"amount_msat"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Expiry      string `json:"expiry"`
}

// Invoice asks the node to mint a BOLT11 invoice. Any warning_* key in the
// result fails the call: a warned invoice (no route, low capacity) would be
// unpayable and must not be handed to a merchant's customer.
func (c *Client) Invoice(ctx context.Context, label string, amountMsat int64, description, expiry string) (*CreatedInvoice, error) {
	result, err := c.call(ctx, "invoice", invoiceParams{
		AmountMsat:  amountMsat,
		Label:       label,
		Description: description,
		Expiry:      expiry,
	})
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil {
		return nil, fmt.Errorf("invoice: failed to decode result: %w", err)
	}
	for key := range fields {
		if strings.HasPrefix(key, "warning_") {
			logger.Warn("Node attached a warning to new invoice",
				zap.String("label", label), zap.String("warning", key))
			return nil, fmt.Errorf("%w: %s", ErrNodeWarning, key)
		}
	}

	var created CreatedInvoice
	if err := json.Unmarshal(result, &created); err != nil {
		return nil, fmt.Errorf("invoice: failed to decode result: %w", err)
	}
	if created.Bolt11 == "" {
		return nil, fmt.Errorf("invoice: node returned no bolt11")
	}
	return &created, nil
}

type listInvoicesParams struct {
	Label string `json:"label"`
}

type listInvoicesResult struct {
	Invoices []struct {
		Label  string `json:"label"`
		Status string `json:"status"`
	} `json:"invoices"`
}

// InvoiceStatus returns the node-side status of the invoice with the given
// label: "unpaid", "paid" or "expired".
func (c *Client) InvoiceStatus(ctx context.Context, label string) (string, error) {
	result, err := c.call(ctx, "listinvoices", listInvoicesParams{Label: label})
	if err != nil {
		return "", err
	}

	var listed listInvoicesResult
	if err := json.Unmarshal(result, &listed); err != nil {
		return "", fmt.Errorf("listinvoices: failed to decode result: %w", err)
	}
	if len(listed.Invoices) == 0 {
		return "", fmt.Errorf("%w: %s", ErrInvoiceNotFound, label)
	}
	if len(listed.Invoices) > 1 {
		// Labels are unique per node; more than one match means the label
		// scheme is broken.
		return "", fmt.Errorf("listinvoices: %d invoices share label %s", len(listed.Invoices), label)
	}
	return listed.Invoices[0].Status, nil
}
