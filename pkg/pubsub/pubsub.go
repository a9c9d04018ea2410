// Package pubsub implements the in-process topic bus coupling the invoice
// pipeline: database inserts, the lightning monitor and feed streams talk
// to each other through it without holding direct references.
//
// Delivery is synchronous on the publisher's goroutine. The subscriber map
// is snapshotted under the mutex and callbacks run outside of it, so a
// callback may itself publish, subscribe or unsubscribe without deadlock.
package pubsub

import (
	"sync"

	"lightning-gateway/pkg/logger"

	"go.uber.org/zap"
)

// Topics published by the invoice pipeline.
const (
	TopicInvoiceCreated   = "/invoice/created"
	TopicInvoicePending   = "/invoice/pending"
	TopicInvoiceFinalized = "/invoice/finalized"
)

// Callback receives the topic an event was published on and its payload.
type Callback func(topic string, payload any)

type subscription struct {
	topic    string
	callback Callback
}

// Bus is an in-process topic bus with exact-match topics. The zero value is
// not usable; construct with New. Production wires a single Bus in
// cmd/server and injects it everywhere; tests substitute their own.
type Bus struct {
	mu     sync.Mutex
	lastID int
	subs   map[int]*subscription
	// Insertion order per topic is preserved for delivery.
	order []int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Subscribe registers callback for exact-match topic and returns a fresh
// positive subscription id.
func (b *Bus) Subscribe(topic string, callback Callback) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastID++
	b.subs[b.lastID] = &subscription{topic: topic, callback: callback}
	b.order = append(b.order, b.lastID)
	return b.lastID
}

// Unsubscribe removes the subscription if present. Idempotent.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, sid := range b.order {
		if sid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers payload synchronously to every subscriber of topic, in
// registration order. The subscriber set is snapshotted before fan-out: a
// subscription added mid-publish does not see the in-flight event, and one
// removed mid-publish may still receive it. A panicking callback is logged
// and does not prevent delivery to the remaining subscribers.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	snapshot := make([]*subscription, 0, len(b.order))
	for _, id := range b.order {
		if sub := b.subs[id]; sub != nil && sub.topic == topic {
			snapshot = append(snapshot, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range snapshot {
		deliver(sub, topic, payload)
	}
}

func deliver(sub *subscription, topic string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pubsub subscriber panicked",
				zap.String("topic", topic),
				zap.Any("panic", r))
		}
	}()
	sub.callback(topic, payload)
}
