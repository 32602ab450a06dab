package viewstate

import "sync"

// Change describes one store mutation.
type Change struct {
	Resource Resource
	Seq      uint64
	Failed   bool
}

// Hub fans out store changes to subscribers. Slow subscribers miss
// notifications rather than block the writer; a missed notification is
// harmless because readers always take a fresh Snapshot.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Change]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Change]struct{})}
}

// Subscribe registers a new listener.
func (h *Hub) Subscribe() chan Change {
	ch := make(chan Change, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a listener.
func (h *Hub) Unsubscribe(ch chan Change) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers c to every listener without blocking.
func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribers returns the number of active listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
