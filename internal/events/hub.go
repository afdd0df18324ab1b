package events

import (
	"sync"
	"sync/atomic"
)

// Hub numbers events and broadcasts them encoded. Slow subscribers miss
// events rather than block publishers; a gap in seq tells them so.
type Hub struct {
	seq     atomic.Uint64
	mu      sync.Mutex
	clients map[chan string]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan string]struct{})}
}

func (h *Hub) Subscribe() chan string {
	ch := make(chan string, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	_, ok := h.clients[ch]
	delete(h.clients, ch)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// numbered under mu so subscribers see seq in order
	e.Seq = h.seq.Add(1)
	msg := e.Encode()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Emit publishes an event that belongs to no request.
func (h *Hub) Emit(typ, source string, data any) {
	h.Publish(MakeEvent("", typ, source, data))
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
