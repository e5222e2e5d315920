package poller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Fantasim/paysync/internal/config"
)

// Event is one tracker event fanned out to SSE clients.
type Event struct {
	Type string `json:"type"`
	Data Update `json:"data"`
}

// Hub broadcasts tracker events to every subscribed client.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]struct{})}
}

// Run blocks until ctx is done, then closes every client channel.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
	h.mu.Unlock()

	slog.Info("event hub stopped", "reason", ctx.Err())
}

// Subscribe registers a client.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, config.SSEHubChannelBuffer)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	slog.Debug("event client subscribed", "totalClients", n)
	return ch
}

// Unsubscribe removes a client and closes its channel. Safe to call after
// Run has already closed it.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	n := len(h.clients)
	h.mu.Unlock()

	slog.Debug("event client unsubscribed", "totalClients", n)
}

// Broadcast delivers event to every client without blocking; a client whose
// buffer is full misses it.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			slog.Warn("event dropped for slow client",
				"eventType", event.Type,
				"invoiceId", event.Data.InvoiceID,
			)
		}
	}
}

// ClientCount returns the number of subscribed clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
