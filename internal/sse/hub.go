// Package sse fans serialized events out to Server-Sent Events clients.
package sse

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHeartbeat is the interval of keep-alive comments on idle streams.
	DefaultHeartbeat = 15 * time.Second

	clientBuffer = 16
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

type Event struct {
	ID   int64
	Type string
	Data []byte
}

type client struct {
	id     string
	events chan Event
}

// Hub keeps the most recent event so new subscribers render immediately.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	last    *Event

	nextID    atomic.Int64
	heartbeat time.Duration
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(heartbeat time.Duration, logger *slog.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:   make(map[string]*client),
		heartbeat: heartbeat,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Publish assigns the next event id and delivers the event to every client.
// Slow clients miss events rather than block the publisher.
func (h *Hub) Publish(eventType string, data []byte) {
	ev := Event{ID: h.nextID.Add(1), Type: eventType, Data: data}

	h.mu.Lock()
	h.last = &ev
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.events <- ev:
		default:
			h.logger.Debug("sse client lagging, event dropped", "client_id", c.id, "event_id", ev.ID)
		}
	}
}

// Subscribe streams events to w until the request ends or the hub closes.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	c := &client{id: uuid.NewString(), events: make(chan Event, clientBuffer)}

	h.mu.Lock()
	h.clients[c.id] = c
	last := h.last
	h.mu.Unlock()
	defer h.unregister(c.id)

	h.logger.Debug("sse client connected", "client_id", c.id)
	defer h.logger.Debug("sse client disconnected", "client_id", c.id)

	if last != nil {
		if err := writeEvent(w, *last); err != nil {
			return err
		}
	} else if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return err
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case ev := <-c.events:
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close ends all active streams. Idempotent.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data)
	return err
}
