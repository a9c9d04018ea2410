package rpc

import (
	"context"
	"errors"
	"time"

	"lightning-gateway/internal/auth"
	"lightning-gateway/internal/database"
	"lightning-gateway/internal/invoice"
	"lightning-gateway/pkg/logger"
	"lightning-gateway/pkg/pubsub"

	"go.uber.org/zap"
)

// TokenVerifier is the slice of the token service the handlers need.
type TokenVerifier interface {
	Verify(token string) (auth.TokenPayload, error)
}

// AccountDirectory resolves token subjects to accounts.
type AccountDirectory interface {
	GetAccount(ctx context.Context, username string) (*database.Account, error)
}

// InvoiceCreator builds invoices for authenticated merchants.
type InvoiceCreator interface {
	Create(ctx context.Context, accountID, amountRequested int64) (*invoice.Summary, error)
}

// Options wires the handlers to their collaborators.
type Options struct {
	Tokens   TokenVerifier
	Accounts AccountDirectory
	Invoices InvoiceCreator
	Bus      *pubsub.Bus

	// PoolSize workers serve each connection; feeds beyond PoolSize-1
	// would starve control requests, so the effective feed quota is
	// min(MaxFeedsAllowed, PoolSize-1).
	PoolSize        int
	MaxFeedsAllowed int
	// FeedTick is the feed drain interval.
	FeedTick time.Duration
}

func (o *Options) feedQuota() int {
	quota := o.MaxFeedsAllowed
	if limit := o.PoolSize - 1; limit < quota {
		quota = limit
	}
	return quota
}

type handlers struct {
	opts Options
}

// newDispatcher builds the method table. Registration is explicit: a
// method not listed here does not exist.
func newDispatcher(opts Options) *Dispatcher {
	if opts.FeedTick == 0 {
		opts.FeedTick = 50 * time.Millisecond
	}
	h := &handlers{opts: opts}

	d := NewDispatcher()
	d.RegisterPreAuth("authenticate", h.authenticate)
	d.Register("echo", h.echo)
	d.Register("create_invoice", h.createInvoice)
	d.Register("select_feed", h.selectFeed)
	d.Register("cancel_feed", h.cancelFeed)
	return d
}

func (h *handlers) authenticate(ctx context.Context, c *Conn, req *Request) (interface{}, *Error) {
	var token string
	if err := unmarshalParams(req.Params, []string{"jwt_token"}, &token); err != nil {
		return nil, err
	}

	payload, err := h.opts.Tokens.Verify(token)
	if err != nil {
		return nil, WrapError(CodeInvalidRequest, "Invalid token", err)
	}
	if payload.Exp < time.Now().Unix() {
		return nil, NewError(CodeInvalidRequest, "Token has expired")
	}

	account, err := h.opts.Accounts.GetAccount(ctx, payload.Sub)
	if err != nil {
		// A valid signature over an unknown subject gets the same answer
		// as a bad token.
		return nil, WrapError(CodeInvalidRequest, "Invalid token", err)
	}

	c.session.Authenticate(account.AccountID, payload.Exp)
	logger.Info("Connection authenticated",
		zap.String("conn_id", c.id),
		zap.Int64("account_id", account.AccountID))
	return "ok", nil
}

func (h *handlers) echo(_ context.Context, _ *Conn, req *Request) (interface{}, *Error) {
	var msg interface{}
	if err := unmarshalParams(req.Params, []string{"msg"}, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (h *handlers) createInvoice(ctx context.Context, c *Conn, req *Request) (interface{}, *Error) {
	var amount int64
	if err := unmarshalParams(req.Params, []string{"amount_requested"}, &amount); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, NewError(CodeInvalidParams, "Invalid params")
	}

	accountID, ok := c.session.AccountID()
	if !ok {
		return nil, NewError(CodeInvalidRequest, "Please authenticate")
	}

	summary, err := h.opts.Invoices.Create(ctx, accountID, amount)
	if err != nil {
		if errors.Is(err, invoice.ErrWaitTimeout) {
			return nil, WrapError(CodeInternalError, "Waiting timed out", err)
		}
		return nil, WrapError(CodeInternalError, "Internal error", err)
	}
	return summary, nil
}
