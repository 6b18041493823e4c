package store

import (
	"context"
	"sync"

	"iap-sync-engine/internal/domain/model"
	"iap-sync-engine/internal/domain/ports/adapter"
)

// EventChannel adapts the store's push-based purchase-update subscription
// into a closeable, ordered queue. Closing unsubscribes from the store; after
// Close no further events are delivered and pending Next calls return false.
type EventChannel struct {
	ch     chan model.PurchaseRecord
	done   chan struct{}
	remove func()
	once   sync.Once
}

// OpenEventChannel subscribes to the store's purchase-update stream.
func OpenEventChannel(client adapter.StoreClient, buffer int) *EventChannel {
	if buffer <= 0 {
		buffer = 16
	}
	c := &EventChannel{
		ch:   make(chan model.PurchaseRecord, buffer),
		done: make(chan struct{}),
	}
	c.remove = client.OnPurchaseUpdated(c.push)
	return c
}

func (c *EventChannel) push(p model.PurchaseRecord) {
	select {
	case <-c.done:
	case c.ch <- p:
	}
}

// Next blocks until an event arrives, the channel is closed, or ctx ends.
// ok is false only when no further events will be delivered.
func (c *EventChannel) Next(ctx context.Context) (p model.PurchaseRecord, ok bool) {
	select {
	case p = <-c.ch:
		return p, true
	case <-c.done:
		return model.PurchaseRecord{}, false
	case <-ctx.Done():
		return model.PurchaseRecord{}, false
	}
}

// Close unsubscribes from the store and releases pending consumers.
// Idempotent; events still buffered at close time are discarded.
func (c *EventChannel) Close() {
	c.once.Do(func() {
		c.remove()
		close(c.done)
	})
}
