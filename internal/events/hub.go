package events

import (
	"sync"
	"time"

	"pricesync-service/internal/models"

	"github.com/google/uuid"
)

// subscriber buffer; slow observers drop events rather than block a run.
const subscriberBuffer = 64

// Emitter receives fire-and-forget progress events.
type Emitter interface {
	Emit(storeID, eventType, message string, data map[string]any)
}

// Fanout forwards every event to each wrapped emitter.
type Fanout []Emitter

func (f Fanout) Emit(storeID, eventType, message string, data map[string]any) {
	for _, e := range f {
		e.Emit(storeID, eventType, message, data)
	}
}

// Hub is an in-process progress broadcaster with subscriptions keyed by
// store id. It backs the live dashboard stream; the engine never blocks on
// subscriber presence.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan models.SyncEvent]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan models.SyncEvent]struct{})}
}

// Subscribe registers an observer for one store's events. The returned
// cancel function must be called to release the subscription.
func (h *Hub) Subscribe(storeID string) (<-chan models.SyncEvent, func()) {
	ch := make(chan models.SyncEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[storeID] == nil {
		h.subs[storeID] = make(map[chan models.SyncEvent]struct{})
	}
	h.subs[storeID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[storeID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, storeID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Emit delivers an event to every subscriber of the store. Full subscriber
// buffers drop the event.
func (h *Hub) Emit(storeID, eventType, message string, data map[string]any) {
	event := models.SyncEvent{
		EventID:   uuid.New().String(),
		StoreID:   storeID,
		Type:      eventType,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[storeID] {
		select {
		case ch <- event:
		default:
		}
	}
}
