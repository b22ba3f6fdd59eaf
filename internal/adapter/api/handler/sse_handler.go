package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/V4T54L/detection-feed/internal/domain"
	"github.com/V4T54L/detection-feed/internal/usecase"
)

const (
	sseQueueSize      = 256
	sseClientBuffer   = 16
	sseHeartbeatEvery = 15 * time.Second
)

// ErrBrokerBusy is returned by Publish when the broadcast queue is full.
var ErrBrokerBusy = errors.New("sse broadcast queue is full")

type sseMessage struct {
	id   string
	data []byte
}

// SSEBroker manages SSE client connections and broadcasts newly created
// events to them in the same shape as the listing endpoint.
type SSEBroker struct {
	logger    *slog.Logger
	format    func(domain.Event) usecase.EventImage
	clients   map[chan sseMessage]struct{}
	mu        sync.RWMutex
	closed    bool
	events    chan domain.Event
	heartbeat time.Duration
}

// NewSSEBroker creates a new SSEBroker and starts its processing loop. All
// client streams end when ctx is cancelled.
func NewSSEBroker(ctx context.Context, format func(domain.Event) usecase.EventImage, logger *slog.Logger) *SSEBroker {
	broker := newSSEBroker(format, logger)
	go broker.run(ctx)
	return broker
}

func newSSEBroker(format func(domain.Event) usecase.EventImage, logger *slog.Logger) *SSEBroker {
	return &SSEBroker{
		logger:    logger.With("component", "sse"),
		format:    format,
		clients:   make(map[chan sseMessage]struct{}),
		events:    make(chan domain.Event, sseQueueSize),
		heartbeat: sseHeartbeatEvery,
	}
}

// Publish queues an event for broadcast. It never blocks the caller.
func (b *SSEBroker) Publish(ctx context.Context, event domain.Event) error {
	select {
	case b.events <- event:
		return nil
	default:
		return ErrBrokerBusy
	}
}

// ServeHTTP handles new client connections for the SSE stream.
func (b *SSEBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	messageChan := make(chan sseMessage, sseClientBuffer)
	if !b.addClient(messageChan) {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer b.removeClient(messageChan)

	// Streams outlive the server's WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				return // Broker stopped
			}
			if msg.data == nil {
				io.WriteString(w, ": keepalive\n\n")
			} else {
				fmt.Fprintf(w, "id: %s\ndata: %s\n\n", msg.id, msg.data)
			}
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *SSEBroker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *SSEBroker) addClient(client chan sseMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.clients[client] = struct{}{}
	b.logger.Info("SSE client connected", "clients", len(b.clients))
	return true
}

func (b *SSEBroker) removeClient(client chan sseMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
		b.logger.Info("SSE client disconnected", "clients", len(b.clients))
	}
}

func (b *SSEBroker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for client := range b.clients {
		delete(b.clients, client)
		close(client)
	}
}

func (b *SSEBroker) broadcast(msg sseMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- msg:
		default:
			// Slow client; drop rather than block the others.
			b.logger.Debug("dropping SSE message for slow client", "id", msg.id)
		}
	}
}

// run is the main processing loop for the broker.
func (b *SSEBroker) run(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case event := <-b.events:
			data, err := json.Marshal(b.format(event))
			if err != nil {
				b.logger.Error("Failed to marshal SSE message", "error", err, "event_id", event.ID)
				continue
			}
			b.broadcast(sseMessage{id: event.ID, data: data})
		case <-ticker.C:
			b.broadcast(sseMessage{})
		}
	}
}
