package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// event is one server-sent message, already serialized
type event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Manager fans events out to every open SSE stream per user. A user can
// have several streams at once (multiple tabs/devices).
type Manager struct {
	mu      sync.RWMutex
	clients map[string]map[chan []byte]bool
}

// NewManager creates a new SSE manager
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]map[chan []byte]bool),
	}
}

// SendToUser delivers an event to all of a user's open streams. A stream
// whose buffer is full is skipped, never blocked on.
func (m *Manager) SendToUser(userID string, eventType string, payload interface{}) {
	data, err := json.Marshal(event{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("[SSE] Failed to marshal event %s: %v", eventType, err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.clients[userID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// ServeHTTP streams events to one client until it disconnects
func (m *Manager) ServeHTTP(c *gin.Context, userID string) {
	ch := make(chan []byte, 32)
	m.register(userID, ch)
	defer m.unregister(userID, ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	notify := c.Request.Context().Done()
	for {
		select {
		case <-notify:
			return
		case data := <-ch:
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			c.Writer.Flush()
		}
	}
}

// Run periodically pings every open stream so idle connections are not
// reaped by proxies. Meant to be started once from the composition root.
func (m *Manager) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.RLock()
		for _, set := range m.clients {
			for ch := range set {
				select {
				case ch <- pingPayload:
				default:
				}
			}
		}
		m.mu.RUnlock()
	}
}

var pingPayload = []byte(`{"type":"ping"}`)

// ConnectedUsers returns how many users currently hold at least one stream
func (m *Manager) ConnectedUsers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) register(userID string, ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clients[userID] == nil {
		m.clients[userID] = make(map[chan []byte]bool)
	}
	m.clients[userID][ch] = true
	log.Printf("[SSE] Client connected for user %s (%d total)", userID, len(m.clients[userID]))
}

func (m *Manager) unregister(userID string, ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.clients[userID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(m.clients, userID)
		}
	}
	log.Printf("[SSE] Client disconnected for user %s", userID)
}
