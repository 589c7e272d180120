package realtime

import (
	"log/slog"
	"sync"
)

// Hub manages per-user realtime subscribers and event fan-out.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Envelope]struct{}
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Envelope]struct{}),
	}
}

// Subscribe registers a new subscriber for a user and returns the event channel and cleanup function
func (h *Hub) Subscribe(userID string) (chan Envelope, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Envelope, 16)

	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan Envelope]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[userID], ch)
			close(ch)
			if len(h.subscribers[userID]) == 0 {
				delete(h.subscribers, userID)
			}
		})
	}

	return ch, cleanup
}

// Broadcast sends an event to every subscriber of every user. A subscriber whose
// buffer is full misses the event.
func (h *Hub) Broadcast(event Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, subs := range h.subscribers {
		for ch := range subs {
			select {
			case ch <- event:
			default:
				slog.Warn("Realtime subscriber buffer full, event dropped", "user_id", userID, "event", event.Event)
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers for a user
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if subs, ok := h.subscribers[userID]; ok {
		return len(subs)
	}
	return 0
}

// TotalSubscribers returns the total number of active subscribers across all users
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}
