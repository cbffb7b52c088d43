package diagnostics

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks websocket clients for broadcasting live readings.
type Hub struct {
	clients      map[*websocket.Conn]bool
	clientsMutex sync.RWMutex
	// gorilla connections allow a single concurrent writer
	writeMutex sync.Mutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

func (h *Hub) Add(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	h.clients[conn] = true
	h.clientsMutex.Unlock()
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	_, known := h.clients[conn]
	delete(h.clients, conn)
	h.clientsMutex.Unlock()
	if known {
		conn.Close()
	}
}

func (h *Hub) Len() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Send writes one text message to a single client.
func (h *Hub) Send(conn *websocket.Conn, message []byte) error {
	h.writeMutex.Lock()
	defer h.writeMutex.Unlock()
	return conn.WriteMessage(websocket.TextMessage, message)
}

// Broadcast sends message to every client, dropping those that fail.
func (h *Hub) Broadcast(message []byte) {
	h.clientsMutex.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clientsMutex.RUnlock()

	for _, client := range clients {
		if err := h.Send(client, message); err != nil {
			h.Remove(client)
		}
	}
}

func (h *Hub) CloseAll() {
	h.clientsMutex.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]bool)
	h.clientsMutex.Unlock()

	for client := range clients {
		client.Close()
	}
}
