package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lightning-gateway/internal/database"
	"lightning-gateway/pkg/logger"
	"lightning-gateway/pkg/pubsub"

	"go.uber.org/zap"
)

// feedMaxBatch caps the items carried by one feed notification.
const feedMaxBatch = 100

// feedQueueSize bounds the per-feed backlog between ticks. Overflow drops
// the event for this feed; the database still holds the truth.
const feedQueueSize = 1024

const feedTypeFinalizedInvoices = "finalized_invoices"

// feed is one active stream on a connection. Ids are fresh per connection
// and never reused within its lifetime.
type feed struct {
	id       int
	feedType string
	cancel   chan struct{}
	once     sync.Once
}

func (f *feed) doCancel() {
	f.once.Do(func() { close(f.cancel) })
}

// feedItem is the projection of a finalized invoice sent to the merchant.
type feedItem struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"`
}

type feedParams struct {
	FeedID int        `json:"feed_id"`
	Feed   []feedItem `json:"feed"`
}

// selectFeed registers a feed, answers with its id, then keeps the worker
// to stream notifications. Other workers on the pool continue serving
// control requests, which is why feeds are capped below the pool size.
func (h *handlers) selectFeed(_ context.Context, c *Conn, req *Request) (interface{}, *Error) {
	var feedType string
	if err := unmarshalParams(req.Params, []string{"feed_type"}, &feedType); err != nil {
		return nil, err
	}
	if feedType != feedTypeFinalizedInvoices {
		return nil, WrapError(CodeInvalidParams, "Invalid params",
			fmt.Errorf("unknown feed type %q", feedType))
	}

	accountID, ok := c.session.AccountID()
	if !ok {
		return nil, NewError(CodeInvalidRequest, "Please authenticate")
	}

	f, rpcErr := c.registerFeed(feedType, h.opts.feedQuota())
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer c.removeFeed(f.id)

	// Subscribe before replying: an event published right after the
	// client sees the feed id must already be captured.
	queue := make(chan feedItem, feedQueueSize)
	subID := h.opts.Bus.Subscribe(pubsub.TopicInvoiceFinalized, func(_ string, payload any) {
		settled, ok := payload.(database.Invoice)
		if !ok || settled.AccountID != accountID {
			return
		}
		select {
		case queue <- feedItem{InvoiceID: settled.InvoiceID, Status: settled.Status.String()}:
		default:
			logger.Warn("Feed queue full, dropping event",
				zap.String("conn_id", c.id),
				zap.Int("feed_id", f.id),
				zap.Int64("invoice_id", settled.InvoiceID))
		}
	})
	defer h.opts.Bus.Unsubscribe(subID)

	if !req.IsNotification() {
		c.send(resultResponse(req.ID, f.id))
	}

	h.runFinalizedFeed(c, f, queue)
	return resultHandled, nil
}

// runFinalizedFeed streams settled invoices owned by the session's account
// until the feed is cancelled, the token lapses or the connection closes.
func (h *handlers) runFinalizedFeed(c *Conn, f *feed, queue chan feedItem) {
	ticker := time.NewTicker(h.opts.FeedTick)
	defer ticker.Stop()

	for {
		select {
		case <-f.cancel:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.session.CheckAuth(); err != nil {
				logger.Info("Cancelling feed, session expired",
					zap.String("conn_id", c.id), zap.Int("feed_id", f.id))
				return
			}

			batch := drainFeedQueue(queue)
			if len(batch) > 0 {
				c.send(&Notification{
					Jsonrpc: "2.0",
					Method:  "feed",
					Params:  feedParams{FeedID: f.id, Feed: batch},
				})
			}
		}
	}
}

func drainFeedQueue(queue chan feedItem) []feedItem {
	var batch []feedItem
	for len(batch) < feedMaxBatch {
		select {
		case item := <-queue:
			batch = append(batch, item)
		default:
			return batch
		}
	}
	return batch
}

// cancelFeed flags the feed; its streaming worker notices on the next tick
// and tears the feed down.
func (h *handlers) cancelFeed(_ context.Context, c *Conn, req *Request) (interface{}, *Error) {
	var feedID int
	if err := unmarshalParams(req.Params, []string{"feed_id"}, &feedID); err != nil {
		return nil, err
	}

	f, ok := c.lookupFeed(feedID)
	if !ok {
		return nil, NewError(CodeInvalidRequest, fmt.Sprintf("Feed ID %d is not found", feedID))
	}

	f.doCancel()
	return "ok", nil
}
