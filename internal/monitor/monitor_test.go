package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lightning-gateway/internal/database"
	"lightning-gateway/internal/lightning"
	"lightning-gateway/pkg/logger"
	"lightning-gateway/pkg/pubsub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

type invoiceCall struct {
	label      string
	amountMsat int64
	expiry     string
}

type fakeNode struct {
	mu           sync.Mutex
	invoiceCalls []invoiceCall
	invoiceErr   error
	created      lightning.CreatedInvoice

	statusByLabel map[string]string
	statusErr     error
	statusCalls   []string
}

func (f *fakeNode) Invoice(_ context.Context, label string, amountMsat int64, _, expiry string) (*lightning.CreatedInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoiceCalls = append(f.invoiceCalls, invoiceCall{label: label, amountMsat: amountMsat, expiry: expiry})
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	created := f.created
	return &created, nil
}

func (f *fakeNode) InvoiceStatus(_ context.Context, label string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, label)
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.statusByLabel[label], nil
}

type fakeStore struct {
	mu            sync.Mutex
	pendingMarked []int64
	markErr       error
	updated       map[int64]database.InvoiceStatus
	updateErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{updated: make(map[int64]database.InvoiceStatus)}
}

func (f *fakeStore) MarkPending(_ context.Context, id int64, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.pendingMarked = append(f.pendingMarked, id)
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id int64, status database.InvoiceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated[id] = status
	return nil
}

func testInvoice() database.Invoice {
	return database.Invoice{
		InvoiceID:       42,
		Status:          database.InvoiceStatusCreated,
		AccountID:       7,
		CreatedAt:       1700000000,
		AmountRequested: 1000,
		ExchangeRate:    2000,
	}
}

func newTestMonitor(node *fakeNode, store *fakeStore, bus *pubsub.Bus) *Monitor {
	return New(Config{LabelPrefix: "lngw", PollInterval: time.Hour}, node, store, bus)
}

func TestOnCreated_MintsAndPublishesPending(t *testing.T) {
	node := &fakeNode{created: lightning.CreatedInvoice{Bolt11: "lnbc1abc", ExpiresAt: 1700000600}}
	store := newFakeStore()
	bus := pubsub.New()

	var pending []database.Invoice
	bus.Subscribe(pubsub.TopicInvoicePending, func(_ string, payload any) {
		pending = append(pending, payload.(database.Invoice))
	})

	m := newTestMonitor(node, store, bus)
	m.Start()
	defer m.Stop()

	// Publishing on the created topic is what the store does after insert;
	// the whole chain runs synchronously on this goroutine.
	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())

	require.Len(t, node.invoiceCalls, 1)
	assert.Equal(t, "lngw-7-42", node.invoiceCalls[0].label)
	assert.Equal(t, int64(1000*2000*1000), node.invoiceCalls[0].amountMsat)
	assert.Equal(t, "10m", node.invoiceCalls[0].expiry)

	assert.Equal(t, []int64{42}, store.pendingMarked)

	require.Len(t, pending, 1)
	assert.Equal(t, database.InvoiceStatusPending, pending[0].Status)
	assert.Equal(t, "lnbc1abc", pending[0].EncodedInvoice)
	assert.Equal(t, int64(1700000600), pending[0].ExpiredAt)
	assert.Equal(t, int64(7), pending[0].AccountID)
}

func TestOnCreated_NodeFailureLeavesInvoiceCreated(t *testing.T) {
	node := &fakeNode{invoiceErr: errors.New("node down")}
	store := newFakeStore()
	bus := pubsub.New()

	published := 0
	bus.Subscribe(pubsub.TopicInvoicePending, func(_ string, _ any) { published++ })

	m := newTestMonitor(node, store, bus)
	m.Start()
	defer m.Stop()

	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())

	assert.Empty(t, store.pendingMarked)
	assert.Zero(t, published)
	assert.Empty(t, m.pending)
}

func TestOnCreated_MarkPendingFailure(t *testing.T) {
	node := &fakeNode{created: lightning.CreatedInvoice{Bolt11: "lnbc1abc", ExpiresAt: 1700000600}}
	store := newFakeStore()
	store.markErr = errors.New("db down")
	bus := pubsub.New()

	published := 0
	bus.Subscribe(pubsub.TopicInvoicePending, func(_ string, _ any) { published++ })

	m := newTestMonitor(node, store, bus)
	m.Start()
	defer m.Stop()

	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())

	assert.Zero(t, published)
	assert.Empty(t, m.pending)
}

func TestPollOnce_PaidInvoiceFinalized(t *testing.T) {
	node := &fakeNode{
		created:       lightning.CreatedInvoice{Bolt11: "lnbc1abc", ExpiresAt: 1700000600},
		statusByLabel: map[string]string{"lngw-7-42": "paid"},
	}
	store := newFakeStore()
	bus := pubsub.New()

	var finalized []database.Invoice
	bus.Subscribe(pubsub.TopicInvoiceFinalized, func(_ string, payload any) {
		finalized = append(finalized, payload.(database.Invoice))
	})

	m := newTestMonitor(node, store, bus)
	m.Start()
	defer m.Stop()

	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())
	m.pollOnce()

	assert.Equal(t, database.InvoiceStatusPaid, store.updated[42])
	require.Len(t, finalized, 1)
	assert.Equal(t, database.InvoiceStatusPaid, finalized[0].Status)
	assert.Equal(t, int64(7), finalized[0].AccountID)
	assert.Equal(t, "lnbc1abc", finalized[0].EncodedInvoice)
	assert.Empty(t, m.pending)
}

func TestPollOnce_ExpiredInvoiceFinalized(t *testing.T) {
	node := &fakeNode{
		created:       lightning.CreatedInvoice{Bolt11: "lnbc1abc", ExpiresAt: 1700000600},
		statusByLabel: map[string]string{"lngw-7-42": "expired"},
	}
	store := newFakeStore()
	bus := pubsub.New()

	var finalized []database.Invoice
	bus.Subscribe(pubsub.TopicInvoiceFinalized, func(_ string, payload any) {
		finalized = append(finalized, payload.(database.Invoice))
	})

	m := newTestMonitor(node, store, bus)
	m.Start()
	defer m.Stop()

	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())
	m.pollOnce()

	assert.Equal(t, database.InvoiceStatusExpired, store.updated[42])
	require.Len(t, finalized, 1)
	assert.Equal(t, database.InvoiceStatusExpired, finalized[0].Status)
}

func TestPollOnce_UnpaidInvoiceKept(t *testing.T) {
	node := &fakeNode{
		created:       lightning.CreatedInvoice{Bolt11: "lnbc1abc", ExpiresAt: 1700000600},
		statusByLabel: map[string]string{"lngw-7-42": "unpaid"},
	}
	store := newFakeStore()
	bus := pubsub.New()

	m := newTestMonitor(node, store, bus)
	m.Start()
	defer m.Stop()

	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())
	m.pollOnce()
	m.pollOnce()

	assert.Empty(t, store.updated)
	assert.Len(t, m.pending, 1)
	assert.Len(t, node.statusCalls, 2)
}

func TestPollOnce_TransientNodeErrorKeepsEntry(t *testing.T) {
	node := &fakeNode{created: lightning.CreatedInvoice{Bolt11: "lnbc1abc", ExpiresAt: 1700000600}}
	store := newFakeStore()
	bus := pubsub.New()

	m := newTestMonitor(node, store, bus)
	m.Start()
	defer m.Stop()

	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())

	node.statusErr = errors.New("node restarting")
	m.pollOnce()
	assert.Len(t, m.pending, 1)

	// Node recovers, the same entry settles.
	node.statusErr = nil
	node.statusByLabel = map[string]string{"lngw-7-42": "paid"}
	m.pollOnce()
	assert.Empty(t, m.pending)
	assert.Equal(t, database.InvoiceStatusPaid, store.updated[42])
}

func TestPollOnce_StoreFailureRetriesNextTick(t *testing.T) {
	node := &fakeNode{
		created:       lightning.CreatedInvoice{Bolt11: "lnbc1abc", ExpiresAt: 1700000600},
		statusByLabel: map[string]string{"lngw-7-42": "paid"},
	}
	store := newFakeStore()
	bus := pubsub.New()

	finalized := 0
	bus.Subscribe(pubsub.TopicInvoiceFinalized, func(_ string, _ any) { finalized++ })

	m := newTestMonitor(node, store, bus)
	m.Start()
	defer m.Stop()

	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())

	store.updateErr = errors.New("db down")
	m.pollOnce()
	assert.Len(t, m.pending, 1)
	assert.Zero(t, finalized)

	store.updateErr = nil
	m.pollOnce()
	assert.Empty(t, m.pending)
	assert.Equal(t, 1, finalized)
}

func TestStop_UnsubscribesFromCreated(t *testing.T) {
	node := &fakeNode{created: lightning.CreatedInvoice{Bolt11: "lnbc1abc"}}
	store := newFakeStore()
	bus := pubsub.New()

	m := newTestMonitor(node, store, bus)
	m.Start()
	m.Stop()

	bus.Publish(pubsub.TopicInvoiceCreated, testInvoice())
	assert.Empty(t, node.invoiceCalls)
}
