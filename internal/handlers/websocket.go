package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/leadflowhq/leadflow/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope pushed to WebSocket clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler pushes job and pipeline events to connected UI clients.
// Writes to each connection are serialized with a per-connection mutex;
// gorilla/websocket does not allow concurrent writers.
type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]bool
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	eventService      interfaces.EventService
	pipelineThrottler *rate.Limiter
	serverInstanceID  string
}

// NewWebSocketHandler creates the handler and subscribes it to the event
// bus. Pipeline-updated events are throttled; every poll tick with activity
// produces one, and clients only need the latest.
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:            logger,
		clients:           make(map[*websocket.Conn]bool),
		clientMutex:       make(map[*websocket.Conn]*sync.Mutex),
		eventService:      eventService,
		pipelineThrottler: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		serverInstanceID:  uuid.New().String(),
	}

	if eventService != nil {
		h.subscribeToEvents()
	}

	return h
}

func (h *WebSocketHandler) subscribeToEvents() {
	broadcast := func(ctx context.Context, event interfaces.Event) error {
		h.Broadcast(string(event.Type), event.Payload)
		return nil
	}

	for _, eventType := range []interfaces.EventType{
		interfaces.EventJobCreated,
		interfaces.EventJobUpdated,
		interfaces.EventJobCompleted,
		interfaces.EventJobFailed,
		interfaces.EventListChanged,
	} {
		h.eventService.Subscribe(eventType, broadcast)
	}

	h.eventService.Subscribe(interfaces.EventPipelineUpdated, func(ctx context.Context, event interfaces.Event) error {
		if !h.pipelineThrottler.Allow() {
			return nil
		}
		h.Broadcast(string(event.Type), event.Payload)
		return nil
	})
}

// HandleWebSocket upgrades the connection and registers the client. The
// first message identifies the server instance so clients can detect a
// restart and resync their state.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	h.writeToConn(conn, WSMessage{
		Type:    "hello",
		Payload: map[string]string{"server_instance_id": h.serverInstanceID},
	})

	go h.readLoop(conn)
}

// readLoop drains client messages until the connection closes. Clients do
// not send anything meaningful; the read loop exists to detect disconnects.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	count := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	h.logger.Debug().Int("clients", count).Msg("WebSocket client disconnected")
}

// Broadcast sends a message to every connected client.
func (h *WebSocketHandler) Broadcast(msgType string, payload interface{}) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	msg := WSMessage{Type: msgType, Payload: payload}
	for _, conn := range conns {
		h.writeToConn(conn, msg)
	}
}

func (h *WebSocketHandler) writeToConn(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write to WebSocket client")
	}
}

// Close disconnects all clients.
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()
}
