// Package monitor drives invoices through their lifecycle: it mints a node
// invoice for every freshly inserted row and polls the node until each
// pending invoice settles or expires.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lightning-gateway/internal/database"
	"lightning-gateway/internal/lightning"
	"lightning-gateway/pkg/logger"
	"lightning-gateway/pkg/pubsub"

	"go.uber.org/zap"
)

// Node is the slice of the Lightning client the monitor needs.
type Node interface {
	Invoice(ctx context.Context, label string, amountMsat int64, description, expiry string) (*lightning.CreatedInvoice, error)
	InvoiceStatus(ctx context.Context, label string) (string, error)
}

// InvoiceStore is the slice of the invoice repository the monitor needs.
type InvoiceStore interface {
	MarkPending(ctx context.Context, id int64, encodedInvoice string, expiredAt int64) error
	UpdateStatus(ctx context.Context, id int64, status database.InvoiceStatus) error
}

// Config holds the monitor's tunables.
type Config struct {
	// LabelPrefix namespaces node invoice labels so several deployments can
	// share one node.
	LabelPrefix  string
	PollInterval time.Duration
}

// nodeExpiry is the lifetime the node gives each invoice.
const nodeExpiry = "10m"

// Monitor owns the created→pending→{paid,expired} transitions. New-invoice
// events arrive synchronously on the bus; settlement is detected by polling
// the node on a fixed interval.
type Monitor struct {
	cfg   Config
	node  Node
	store InvoiceStore
	bus   *pubsub.Bus

	mu      sync.Mutex
	pending map[int64]database.Invoice

	subID  int
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a monitor. Call Start to begin processing.
func New(cfg Config, node Node, store InvoiceStore, bus *pubsub.Bus) *Monitor {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Monitor{
		cfg:     cfg,
		node:    node,
		store:   store,
		bus:     bus,
		pending: make(map[int64]database.Invoice),
		stopCh:  make(chan struct{}),
	}
}

// Start subscribes to new-invoice events and launches the polling loop.
func (m *Monitor) Start() {
	m.subID = m.bus.Subscribe(pubsub.TopicInvoiceCreated, m.onCreated)
	m.wg.Add(1)
	go m.loop()
	logger.Info("Invoice monitor started",
		zap.Duration("poll_interval", m.cfg.PollInterval),
		zap.String("label_prefix", m.cfg.LabelPrefix))
}

// Stop unsubscribes and waits for the polling loop to exit. Pending
// invoices are left in the store; a restarted monitor does not resume them,
// the node-side expiry cleans them up.
func (m *Monitor) Stop() {
	m.bus.Unsubscribe(m.subID)
	close(m.stopCh)
	m.wg.Wait()
	logger.Info("Invoice monitor stopped")
}

// Label returns the node-side label for an invoice.
func (m *Monitor) Label(accountID, invoiceID int64) string {
	return fmt.Sprintf("%s-%d-%d", m.cfg.LabelPrefix, accountID, invoiceID)
}

// onCreated runs synchronously on the publisher's goroutine, so the caller
// that inserted the invoice observes the pending transition before its
// insert call returns. The mutex is never held across the node call.
func (m *Monitor) onCreated(_ string, payload any) {
	invoice, ok := payload.(database.Invoice)
	if !ok {
		logger.Error("Unexpected payload on created topic", zap.Any("payload", payload))
		return
	}

	label := m.Label(invoice.AccountID, invoice.InvoiceID)
	amountMsat := invoice.AmountRequested * invoice.ExchangeRate * 1000

	ctx := context.Background()
	created, err := m.node.Invoice(ctx, label, amountMsat, "", nodeExpiry)
	if err != nil {
		// The row stays in created; the requester's wait will time out.
		logger.Error("Failed to mint node invoice",
			zap.Int64("invoice_id", invoice.InvoiceID), zap.Error(err))
		return
	}

	if err := m.store.MarkPending(ctx, invoice.InvoiceID, created.Bolt11, created.ExpiresAt); err != nil {
		logger.Error("Failed to mark invoice pending",
			zap.Int64("invoice_id", invoice.InvoiceID), zap.Error(err))
		return
	}

	invoice.Status = database.InvoiceStatusPending
	invoice.EncodedInvoice = created.Bolt11
	invoice.ExpiredAt = created.ExpiresAt

	m.mu.Lock()
	m.pending[invoice.InvoiceID] = invoice
	m.mu.Unlock()

	m.bus.Publish(pubsub.TopicInvoicePending, invoice)
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

// pollOnce checks every pending invoice against the node. Transient node
// failures leave the entry in place for the next tick.
func (m *Monitor) pollOnce() {
	m.mu.Lock()
	snapshot := make([]database.Invoice, 0, len(m.pending))
	for _, invoice := range m.pending {
		snapshot = append(snapshot, invoice)
	}
	m.mu.Unlock()

	ctx := context.Background()
	for _, invoice := range snapshot {
		label := m.Label(invoice.AccountID, invoice.InvoiceID)
		status, err := m.node.InvoiceStatus(ctx, label)
		if err != nil {
			logger.Warn("Failed to poll invoice status",
				zap.Int64("invoice_id", invoice.InvoiceID), zap.Error(err))
			continue
		}

		switch status {
		case "paid":
			m.finalize(ctx, invoice, database.InvoiceStatusPaid)
		case "expired":
			m.finalize(ctx, invoice, database.InvoiceStatusExpired)
		case "unpaid":
			// Still waiting.
		default:
			logger.Warn("Unknown node invoice status",
				zap.Int64("invoice_id", invoice.InvoiceID), zap.String("status", status))
		}
	}
}

// finalize persists the terminal status, removes the pending entry and
// broadcasts the settled invoice. If the store write fails the entry is
// kept and retried on the next tick.
func (m *Monitor) finalize(ctx context.Context, invoice database.Invoice, status database.InvoiceStatus) {
	if err := m.store.UpdateStatus(ctx, invoice.InvoiceID, status); err != nil {
		logger.Error("Failed to persist terminal invoice status",
			zap.Int64("invoice_id", invoice.InvoiceID),
			zap.String("status", status.String()), zap.Error(err))
		return
	}

	m.mu.Lock()
	delete(m.pending, invoice.InvoiceID)
	m.mu.Unlock()

	invoice.Status = status
	m.bus.Publish(pubsub.TopicInvoiceFinalized, invoice)

	logger.Info("Invoice finalized",
		zap.Int64("invoice_id", invoice.InvoiceID),
		zap.Int64("account_id", invoice.AccountID),
		zap.String("status", status.String()))
}
