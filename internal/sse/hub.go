// Package sse streams session state and inbound message notifications to
// browsers over Server-Sent Events.
package sse

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adrianva1983/whatsApp-bot/internal/metrics"
	"github.com/adrianva1983/whatsApp-bot/internal/models"
)

const (
	// WriteTimeout is the timeout for writing to SSE clients.
	WriteTimeout = 2 * time.Second

	// EventUpdate carries a session state snapshot.
	EventUpdate = "update"
	// EventMessage carries an inbound message notification.
	EventMessage = "msg"
)

var (
	// ErrStreamingUnsupported is returned for writers that cannot flush.
	ErrStreamingUnsupported = errors.New("streaming not supported")
	// ErrClientClosed is returned when writing to a client that went away.
	ErrClientClosed = errors.New("client closed")
)

// Client represents a connected SSE client.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Flusher http.Flusher
	Done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// write sends one frame. Frames to the same client never interleave and
// nothing is written once the client is closed.
func (c *Client) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.Done:
		return ErrClientClosed
	default:
	}

	if _, err := c.Writer.Write(frame); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

// Hub fans events out to every connected client. Nothing is replayed; a new
// client only receives the current state snapshot.
type Hub struct {
	snapshot func() models.SessionState

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a hub. snapshot supplies the state sent to new clients.
func NewHub(snapshot func() models.SessionState) *Hub {
	return &Hub{
		snapshot: snapshot,
		clients:  make(map[string]*Client),
	}
}

// Subscribe registers w as a client and writes the current state to it.
func (h *Hub) Subscribe(w http.ResponseWriter) (*Client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Flusher: flusher,
		Done:    make(chan struct{}),
	}

	// Hold the write lock until the snapshot is out so no broadcast
	// overtakes it.
	client.writeMu.Lock()
	h.mu.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mu.Unlock()
	metrics.SSEClients.Set(float64(count))

	frame, err := encode(EventUpdate, h.snapshot())
	if err == nil {
		_, err = w.Write(frame)
		flusher.Flush()
	}
	client.writeMu.Unlock()

	if err != nil {
		h.Unsubscribe(client)
		return nil, err
	}

	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", count).
		Msg("SSE client connected")

	return client, nil
}

// Unsubscribe removes a client. It is safe to call more than once.
func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	_, existed := h.clients[client.ID]
	delete(h.clients, client.ID)
	count := len(h.clients)
	h.mu.Unlock()

	client.close()
	metrics.SSEClients.Set(float64(count))

	if existed {
		log.Debug().
			Str("clientId", client.ID).
			Int("totalClients", count).
			Msg("SSE client disconnected")
	}
}

// BroadcastState sends a state snapshot to every client.
func (h *Hub) BroadcastState(state models.SessionState) {
	h.broadcast(EventUpdate, state)
}

// BroadcastMessage sends an inbound message notification to every client.
func (h *Hub) BroadcastMessage(n models.Notification) {
	h.broadcast(EventMessage, n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal SSE data")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	deadCh := make(chan *Client, len(clients))
	var wg sync.WaitGroup

	for _, client := range clients {
		select {
		case <-client.Done:
			continue
		default:
		}

		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			h.writeToClient(c, frame, deadCh)
		}(client)
	}

	wg.Wait()
	close(deadCh)

	for client := range deadCh {
		h.Unsubscribe(client)
	}
}

// writeToClient writes a frame with a timeout so a stale connection cannot
// hold up the broadcast.
func (h *Hub) writeToClient(client *Client, frame []byte, deadCh chan<- *Client) {
	done := make(chan error, 1)
	go func() {
		done <- client.write(frame)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Debug().
				Str("clientId", client.ID).
				Err(err).
				Msg("Failed to write to SSE client, marking for removal")
			deadCh <- client
		}
	case <-time.After(WriteTimeout):
		log.Warn().
			Str("clientId", client.ID).
			Dur("timeout", WriteTimeout).
			Msg("SSE write timed out, marking client for removal")
		deadCh <- client
	case <-client.Done:
	}
}

// ServeHTTP streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	client, err := h.Subscribe(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	select {
	case <-r.Context().Done():
	case <-client.Done:
	}

	// The writer is only valid until we return, so wait for a write in
	// flight. Later writes see Done and skip.
	h.Unsubscribe(client)
	client.writeMu.Lock()
	client.writeMu.Unlock()
}

// encode renders one SSE frame.
func encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, payload)), nil
}
