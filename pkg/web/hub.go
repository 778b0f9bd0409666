package web

import (
	"log"
	"sync"
	"time"

	"github.com/se302/webtest/pkg/metrics"
)

const (
	clientBufferSize    = 256             // send buffer of each client
	terminalSendTimeout = 2 * time.Second // wait for buffer room before dropping a client
)

// Hub manages connected client channels.
// thread-safe for concurrent subscribe/unsubscribe/send operations.
type Hub struct {
	mu           sync.RWMutex
	clients      map[chan Event]struct{}
	terminalWait time.Duration
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[chan Event]struct{}),
		terminalWait: terminalSendTimeout,
	}
}

// Subscribe adds a client and returns its buffered channel.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, clientBufferSize)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	metrics.ClientConnected()
	return ch
}

// Unsubscribe removes a client channel and closes it.
// safe to call multiple times with the same channel.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
		metrics.ClientDisconnected()
	}
}

// Send delivers an event to one client. regular events never block and are dropped
// when the buffer is full. terminal run events wait for buffer room, and a client that
// can't take one in time is disconnected, so it sees the loss as a closed connection.
// returns false if the event was not delivered.
func (h *Hub) Send(ch chan Event, e Event) bool {
	if !e.Terminal() {
		h.mu.RLock()
		defer h.mu.RUnlock()
		if _, ok := h.clients[ch]; !ok {
			return false
		}
		return trySend(ch, e)
	}

	delivered, subscribed := h.sendWait(ch, e)
	if subscribed && !delivered {
		log.Printf("[WARN] client too slow for %s, disconnecting", e.Name)
		h.Unsubscribe(ch)
	}
	return delivered
}

// sendWait blocks up to terminalWait for buffer room. the read lock keeps ch open meanwhile.
func (h *Hub) sendWait(ch chan Event, e Event) (delivered, subscribed bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[ch]; !ok {
		return false, false
	}

	timer := time.NewTimer(h.terminalWait)
	defer timer.Stop()
	select {
	case ch <- e:
		return true, true
	case <-timer.C:
		metrics.RecordEventDropped()
		return false, true
	}
}

// Broadcast sends an event to all subscribed clients.
// events are dropped for clients with full buffers.
func (h *Hub) Broadcast(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		trySend(ch, e)
	}
}

func trySend(ch chan Event, e Event) bool {
	select {
	case ch <- e:
		return true
	default:
		metrics.RecordEventDropped()
		return false
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close unsubscribes all clients and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
		metrics.ClientDisconnected()
	}
}
