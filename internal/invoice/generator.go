// Package invoice creates merchant invoices and waits for the monitor to
// hand back their payable form.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lightning-gateway/internal/database"
	"lightning-gateway/internal/exchange"
	"lightning-gateway/pkg/logger"
	"lightning-gateway/pkg/pubsub"

	"go.uber.org/zap"
)

var (
	// ErrRateUnavailable is returned when the exchange rate cannot be
	// fetched; no invoice row is written in that case.
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	// ErrWaitTimeout is returned when the invoice was inserted but never
	// became pending within the wait budget. The row stays in the store.
	ErrWaitTimeout = errors.New("timed out waiting for invoice")
)

// Summary is the projection of a pending invoice handed back to the
// requesting merchant.
type Summary struct {
	InvoiceID       int64  `json:"invoice_id"`
	EncodedInvoice  string `json:"encoded_invoice"`
	AmountRequested int64  `json:"amount_requested"`
	ExchangeRate    int64  `json:"exchange_rate"`
	ExpiredAt       int64  `json:"expired_at"`
}

// InvoiceStore is the slice of the invoice repository the generator needs.
// Create must broadcast the inserted invoice on the new-invoice topic.
type InvoiceStore interface {
	Create(ctx context.Context, invoice *database.Invoice) error
}

// Generator builds invoices for authenticated merchants.
type Generator struct {
	store InvoiceStore
	rates exchange.RateSource
	bus   *pubsub.Bus
	wait  time.Duration
}

// defaultWait bounds how long Create blocks for the pending transition.
const defaultWait = 5 * time.Second

// NewGenerator creates a generator. A zero wait selects the default.
func NewGenerator(store InvoiceStore, rates exchange.RateSource, bus *pubsub.Bus, wait time.Duration) *Generator {
	if wait == 0 {
		wait = defaultWait
	}
	return &Generator{store: store, rates: rates, bus: bus, wait: wait}
}

// Create inserts a new invoice and blocks until the monitor marks it
// pending, returning the payable summary. The pending subscription is set
// up before the insert: with a synchronous bus the whole
// created→minted→pending chain usually completes inside the insert call,
// and the matching snapshot is already buffered when the wait starts.
func (g *Generator) Create(ctx context.Context, accountID, amountRequested int64) (*Summary, error) {
	rate, err := g.rates.GetSatPerUSD(ctx)
	if err != nil {
		logger.Error("Failed to fetch exchange rate", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	invoice := &database.Invoice{
		Status:          database.InvoiceStatusCreated,
		AccountID:       accountID,
		CreatedAt:       time.Now().Unix(),
		AmountRequested: amountRequested,
		ExchangeRate:    rate,
	}

	// The invoice id is unknown until the insert returns, so the callback
	// filters on account and the id match happens on the draining side.
	pendingCh := make(chan database.Invoice, 8)
	subID := g.bus.Subscribe(pubsub.TopicInvoicePending, func(_ string, payload any) {
		pending, ok := payload.(database.Invoice)
		if !ok || pending.AccountID != accountID {
			return
		}
		select {
		case pendingCh <- pending:
		default:
			logger.Warn("Dropping pending snapshot, waiter queue full",
				zap.Int64("invoice_id", pending.InvoiceID))
		}
	})
	defer g.bus.Unsubscribe(subID)

	if err := g.store.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	deadline := time.NewTimer(g.wait)
	defer deadline.Stop()

	for {
		select {
		case pending := <-pendingCh:
			if pending.InvoiceID != invoice.InvoiceID {
				continue
			}
			return &Summary{
				InvoiceID:       pending.InvoiceID,
				EncodedInvoice:  pending.EncodedInvoice,
				AmountRequested: pending.AmountRequested,
				ExchangeRate:    pending.ExchangeRate,
				ExpiredAt:       pending.ExpiredAt,
			}, nil
		case <-deadline.C:
			logger.Warn("Invoice never became pending",
				zap.Int64("invoice_id", invoice.InvoiceID),
				zap.Int64("account_id", accountID))
			return nil, ErrWaitTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
