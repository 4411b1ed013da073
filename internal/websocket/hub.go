package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
}

// StatusSource supplies the registry snapshot replayed to new observers.
type StatusSource interface {
	Snapshot() map[model.JobClass]model.JobStatus
}

// Hub maintains active WebSocket connections and broadcasts job status
// transitions and notifications to all of them. A newly registered client
// is immediately sent the full snapshot of every job class so observers
// never start from a blank state.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	source StatusSource

	mu  sync.RWMutex
	log *zap.Logger
}

// NewHub creates a new Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		log:        log,
	}
}

// SetStatusSource wires the registry after construction; the hub and the
// registry reference each other, so one side has to be set late.
func (h *Hub) SetStatusSource(source StatusSource) {
	h.source = source
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("observer connected", zap.Int("clients", h.clientCount()))

			if snapshot := h.snapshotMessage(); snapshot != nil {
				select {
				case client.Send <- snapshot:
				default:
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.log.Info("observer disconnected", zap.Int("clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastStatus pushes one job class transition to every observer. It
// satisfies the registry's Broadcaster interface.
func (h *Hub) BroadcastStatus(class model.JobClass, st model.JobStatus) {
	msg := model.WSStatusMessage{
		Type:   model.WSMessageTypeStatusUpdate,
		Job:    class,
		Status: st,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal status message", zap.Error(err))
		return
	}
	h.send(data, "status")
}

// BroadcastNotification pushes a freshly created notification.
func (h *Hub) BroadcastNotification(n model.Notification) {
	msg := model.WSNotificationMessage{
		Type:         model.WSMessageTypeNotification,
		Notification: n,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal notification message", zap.Error(err))
		return
	}
	h.send(data, "notification")
}

// send never blocks the caller. The registry broadcasts while holding its
// mutex, so a stalled hub loop must cost a dropped message, not a stalled
// job transition; observers recover the current state from the next
// snapshot replay.
func (h *Hub) send(data []byte, kind string) {
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("broadcast buffer full, dropping message", zap.String("kind", kind))
	}
}

// snapshotMessage builds the replay message for a new observer.
func (h *Hub) snapshotMessage() []byte {
	if h.source == nil {
		return nil
	}
	msg := model.WSSnapshotMessage{
		Type: model.WSMessageTypeSnapshot,
		Jobs: h.source.Snapshot(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal snapshot message", zap.Error(err))
		return nil
	}
	return data
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn) {
	client := &Client{
		Conn: c,
		Send: make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Writer goroutine with keep-alive pings.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
