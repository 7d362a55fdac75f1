package metrics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"stratd/src/datamodels"
)

// WebsocketMetricsWriter streams snapshots to every attached websocket
// client. A client that fails a write is dropped rather than failing the
// broadcast.
type WebsocketMetricsWriter struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

func NewWebsocketMetricsWriter() *WebsocketMetricsWriter {
	return &WebsocketMetricsWriter{
		clients: make(map[*websocket.Conn]bool),
	}
}

// AddClient adds a new client connection
func (w *WebsocketMetricsWriter) AddClient(conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients[conn] = true
}

// RemoveClient removes a client connection
func (w *WebsocketMetricsWriter) RemoveClient(conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.clients, conn)
}

func (w *WebsocketMetricsWriter) ClientCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}

func (w *WebsocketMetricsWriter) Write(ctx context.Context, snapshot datamodels.StatsSnapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for client := range w.clients {
		if err := client.WriteJSON(snapshot); err != nil {
			slog.Warn("Dropping websocket metrics client after write failure", "error", err)
			client.Close()
			delete(w.clients, client)
		}
	}
	return nil
}

func (w *WebsocketMetricsWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for client := range w.clients {
		client.Close()
	}
	w.clients = make(map[*websocket.Conn]bool)
	return nil
}
