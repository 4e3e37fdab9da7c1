package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is the envelope pushed to UI subscribers when the fleet changes.
type Event struct {
	Type    string      `json:"type"`             // import, rotate, remove
	Target  string      `json:"target,omitempty"` // permanent GUID
	Payload interface{} `json:"payload,omitempty"`
}

// EventHub fans fleet events out to websocket subscribers (the UI's live
// activity feed).
type EventHub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[*websocket.Conn]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: map[*websocket.Conn]struct{}{},
	}
}

// HandleSubscribe upgrades and registers a subscriber.
func (h *EventHub) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("event subscriber connected (%d total)", h.count())
	go h.readLoop(c)
}

// Broadcast sends an event to every subscriber; dead connections are
// dropped on write failure.
func (h *EventHub) Broadcast(ev Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subs))
	for c := range h.subs {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		if err := c.WriteJSON(ev); err != nil {
			h.drop(c)
		}
	}
}

// readLoop drains the connection so pings/closes are processed.
func (h *EventHub) readLoop(c *websocket.Conn) {
	defer h.drop(c)
	for {
		if _, _, err := c.NextReader(); err != nil {
			return
		}
	}
}

func (h *EventHub) drop(c *websocket.Conn) {
	_ = c.Close()
	h.mu.Lock()
	delete(h.subs, c)
	h.mu.Unlock()
}

func (h *EventHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
