package events

import (
	"sync"
	"time"
)

type Type string

const (
	TypeCatalogUpdated Type = "catalog_updated"
	TypeTransfer       Type = "transfer"
	TypeSyncFlushed    Type = "sync_flushed"
)

type Event struct {
	Type Type        `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data,omitempty"`
}

// Hub fans events out to registered subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: map[int]chan Event{}, buffer: buffer}
}

// Register adds a subscriber. The returned id is what Unregister takes.
func (h *Hub) Register() (int, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ch := make(chan Event, h.buffer)
	h.subs[h.nextID] = ch
	return h.nextID, ch
}

// Unregister removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unregister(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber with room for it and returns how
// many received it.
func (h *Hub) Publish(t Type, data interface{}) int {
	ev := Event{Type: t, At: time.Now(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for _, ch := range h.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
