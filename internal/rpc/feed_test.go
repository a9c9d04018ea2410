package rpc

import (
	"testing"
	"time"

	"lightning-gateway/internal/database"
	"lightning-gateway/pkg/pubsub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settledInvoice(invoiceID, accountID int64, status database.InvoiceStatus) database.Invoice {
	return database.Invoice{
		InvoiceID: invoiceID,
		AccountID: accountID,
		Status:    status,
	}
}

func TestFeed_ReceiveFilterCancel(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate("m1", time.Now().Unix()+3600)

	h.send(`{"id":1,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	reply := h.recv()
	assert.Equal(t, float64(1), reply["result"])
	assert.Equal(t, float64(1), reply["id"])

	// An invoice owned by the session's account arrives on the feed.
	h.bus.Publish(pubsub.TopicInvoiceFinalized, settledInvoice(7, 5, database.InvoiceStatusPaid))

	frame := h.recv()
	assert.Equal(t, "feed", frame["method"])
	assert.Nil(t, frame["id"])
	params := frame["params"].(map[string]interface{})
	assert.Equal(t, float64(1), params["feed_id"])
	items := params["feed"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, float64(7), item["invoice_id"])
	assert.Equal(t, "paid", item["status"])

	// Another account's invoice never reaches this feed.
	h.bus.Publish(pubsub.TopicInvoiceFinalized, settledInvoice(8, 6, database.InvoiceStatusPaid))
	_, got := h.tryRecv(100 * time.Millisecond)
	assert.False(t, got, "foreign invoices must be filtered out")

	h.send(`{"id":2,"jsonrpc":"2.0","method":"cancel_feed","params":{"feed_id":1}}`)
	reply = h.recv()
	assert.Equal(t, "ok", reply["result"])

	// The stream is torn down; later events go nowhere.
	time.Sleep(50 * time.Millisecond)
	h.bus.Publish(pubsub.TopicInvoiceFinalized, settledInvoice(9, 5, database.InvoiceStatusExpired))
	_, got = h.tryRecv(100 * time.Millisecond)
	assert.False(t, got)
}

func TestFeed_BatchesMultipleEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate("m1", time.Now().Unix()+3600)

	h.send(`{"id":1,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	h.recv()

	// Published back to back these land in the same queue; the next tick
	// drains them into a single frame.
	h.bus.Publish(pubsub.TopicInvoiceFinalized, settledInvoice(7, 5, database.InvoiceStatusPaid))
	h.bus.Publish(pubsub.TopicInvoiceFinalized, settledInvoice(8, 5, database.InvoiceStatusExpired))

	frame := h.recv()
	params := frame["params"].(map[string]interface{})
	items := params["feed"].([]interface{})
	require.Len(t, items, 2)
	assert.LessOrEqual(t, len(items), feedMaxBatch)
}

func TestFeed_Quota(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate("m1", time.Now().Unix()+3600)

	h.send(`{"id":1,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	reply := h.recv()
	assert.Equal(t, float64(1), reply["result"])

	h.send(`{"id":2,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	reply = h.recv()
	assert.Equal(t, CodeInvalidRequest, errCode(reply))
	assert.Equal(t, "You have reached the max number of feeds", errMessage(reply))
}

func TestFeed_DuplicateTypeWithRoomInQuota(t *testing.T) {
	h := newHarness(t, func(opts *Options) {
		opts.MaxFeedsAllowed = 2
	})
	h.authenticate("m1", time.Now().Unix()+3600)

	h.send(`{"id":1,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	h.recv()

	h.send(`{"id":2,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	reply := h.recv()
	assert.Equal(t, CodeInvalidRequest, errCode(reply))
	assert.Equal(t, "Feed type finalized_invoices already exists", errMessage(reply))
}

func TestFeed_UnknownType(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate("m1", time.Now().Unix()+3600)

	h.send(`{"id":1,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"weather"}}`)
	reply := h.recv()
	assert.Equal(t, CodeInvalidParams, errCode(reply))
}

func TestCancelFeed_UnknownID(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate("m1", time.Now().Unix()+3600)

	h.send(`{"id":1,"jsonrpc":"2.0","method":"cancel_feed","params":{"feed_id":99}}`)
	reply := h.recv()
	assert.Equal(t, CodeInvalidRequest, errCode(reply))
	assert.Equal(t, "Feed ID 99 is not found", errMessage(reply))
}

func TestFeed_SessionExpiryCancelsStream(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate("m1", time.Now().Unix()+1)

	h.send(`{"id":1,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	reply := h.recv()
	assert.Equal(t, float64(1), reply["result"])

	// Let the token lapse, then publish. The feed must have cancelled
	// itself on a tick and emit nothing.
	time.Sleep(1200 * time.Millisecond)
	h.bus.Publish(pubsub.TopicInvoiceFinalized, settledInvoice(7, 5, database.InvoiceStatusPaid))
	_, got := h.tryRecv(150 * time.Millisecond)
	assert.False(t, got, "expired session must not receive feed frames")

	// The slot is released, so a fresh token can start a new feed with a
	// new id.
	h.authenticate("m1", time.Now().Unix()+3600)
	h.send(`{"id":2,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	reply = h.recv()
	assert.Equal(t, float64(2), reply["result"], "feed ids are not reused")
}

func TestFeed_FreshIDsPerConnection(t *testing.T) {
	h := newHarness(t, nil)
	h.authenticate("m1", time.Now().Unix()+3600)

	h.send(`{"id":1,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	reply := h.recv()
	assert.Equal(t, float64(1), reply["result"])

	h.send(`{"id":2,"jsonrpc":"2.0","method":"cancel_feed","params":{"feed_id":1}}`)
	h.recv()
	time.Sleep(50 * time.Millisecond)

	h.send(`{"id":3,"jsonrpc":"2.0","method":"select_feed","params":{"feed_type":"finalized_invoices"}}`)
	reply = h.recv()
	assert.Equal(t, float64(2), reply["result"])
}
