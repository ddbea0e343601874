package sse

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/studyloop-backend/internal/logger"
)

// Event is one server-sent message. Data is already-marshaled JSON.
type Event struct {
	Name string
	Data []byte
}

type subscriber struct {
	ch chan Event
}

// Hub fans events out to the SSE connections of a single process, keyed by
// user. Slow subscribers drop events rather than block the publisher.
type Hub struct {
	log *logger.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]map[*subscriber]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  log.With("service", "SSEHub"),
		subs: map[uuid.UUID]map[*subscriber]struct{}{},
	}
}

// Subscribe registers a connection for userID. The returned cancel func must
// be called when the connection closes.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, 16)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[*subscriber]struct{}{}
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
		close(sub.ch)
	}
	return sub.ch, cancel
}

// Publish delivers an event to every live subscriber of userID.
func (h *Hub) Publish(userID uuid.UUID, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- event:
		default:
			h.log.Warn("dropping event for slow subscriber", "user_id", userID, "event", event.Name)
		}
	}
}
