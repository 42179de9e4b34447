// Package ws streams order status changes to WebSocket subscribers.
package ws

import (
	"context"
	"encoding/json"
)

// StatusUpdate is the message pushed to subscribers of an order.
type StatusUpdate struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// client is one connected subscriber for a single order.
type client struct {
	orderID string
	send    chan []byte
}

// Hub fans status updates out to the subscribers of each order. All state is
// confined to the Run goroutine; other goroutines interact only through
// channels.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan StatusUpdate
	// done is closed when Run exits; register/unregister senders select on
	// it so connection goroutines cannot block on a hub that stopped
	// receiving.
	done    chan struct{}
	clients map[string]map[*client]struct{}
}

// NewHub creates an empty hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan StatusUpdate, 64),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*client]struct{}),
	}
}

// Run owns the subscriber registry until ctx is cancelled, then closes every
// subscriber channel. Always returns nil for errgroup supervision.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.orderID]
			if !ok {
				set = make(map[*client]struct{})
				h.clients[c.orderID] = set
			}
			set[c] = struct{}{}

		case c := <-h.unregister:
			if set, ok := h.clients[c.orderID]; ok {
				if _, exists := set[c]; exists {
					delete(set, c)
					close(c.send)
				}
				if len(set) == 0 {
					delete(h.clients, c.orderID)
				}
			}

		case upd := <-h.broadcast:
			set, ok := h.clients[upd.OrderID]
			if !ok {
				continue
			}
			msg, err := json.Marshal(upd)
			if err != nil {
				continue
			}
			for c := range set {
				select {
				case c.send <- msg:
				default:
					// Slow subscriber: drop it rather than block the hub.
					delete(set, c)
					close(c.send)
				}
			}

		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			return nil
		}
	}
}

// Notify queues a status update for the order's subscribers. It never blocks
// the caller: when the hub is saturated the update is dropped, which is
// acceptable for a best-effort UI feed.
func (h *Hub) Notify(orderID, status string) {
	select {
	case h.broadcast <- StatusUpdate{OrderID: orderID, Status: status}:
	default:
	}
}
