package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
)

type Connection struct {
	ID       string
	SendCh   chan []byte
	LastSeen time.Time
}

// Hub fans broadcasts out to connected stream subscribers. Slow subscribers
// miss messages rather than stall the monitor.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	broadcastCh chan models.Message
	done        chan struct{}
	closeOnce   sync.Once
	pumpDone    chan struct{}
}

func NewHub() *Hub {
	h := &Hub{
		connections: make(map[string]*Connection),
		broadcastCh: make(chan models.Message, 100),
		done:        make(chan struct{}),
		pumpDone:    make(chan struct{}),
	}
	go h.broadcastPump()
	return h
}

func (h *Hub) broadcastPump() {
	defer close(h.pumpDone)
	for {
		select {
		case msg := <-h.broadcastCh:
			h.fanOut(msg)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) fanOut(msg models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Failed to marshal stream message", "type", msg.Type, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.connections {
		select {
		case conn.SendCh <- data:
		default:
			logger.Log.Warn("Stream send channel full, dropping message", "subscriber", conn.ID, "type", msg.Type)
		}
	}
}

// Broadcast queues event for every subscriber. It never blocks.
func (h *Hub) Broadcast(event string, payload any) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcastCh <- models.Message{Type: event, Payload: payload}:
	default:
		logger.Log.Warn("Broadcast channel full, dropping message", "type", event)
	}
}

func (h *Hub) Connect(id string) *Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn := &Connection{
		ID:       id,
		SendCh:   make(chan []byte, 100),
		LastSeen: time.Now(),
	}
	h.connections[id] = conn
	logger.Log.Info("Stream subscriber connected", "subscriber", id)
	return conn
}

func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.connections[id]; ok {
		close(conn.SendCh)
		delete(h.connections, id)
		logger.Log.Info("Stream subscriber disconnected", "subscriber", id)
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close stops the pump and disconnects every subscriber.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.pumpDone
		h.mu.Lock()
		for id, conn := range h.connections {
			close(conn.SendCh)
			delete(h.connections, id)
		}
		h.mu.Unlock()
	})
}
