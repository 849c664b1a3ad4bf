package server

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/voicememo/internal/recorder"
	"github.com/audiolibrelab/voicememo/internal/recording"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Event is pushed to every WebSocket client
type Event struct {
	Type       string                `json:"type"` // "snapshot", "recording", "session"
	Recording  *recording.Recording  `json:"recording,omitempty"`
	Recordings []recording.Recording `json:"recordings,omitempty"`
	Session    *recorder.Session     `json:"session,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(ev)
}

// Hub fans recording and session changes out to connected browsers
type Hub struct {
	upgrader websocket.Upgrader
	snapshot func() Event

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	sent atomic.Uint64
}

// NewHub creates a hub; snapshot produces the first event each client receives
func NewHub(snapshot func() Event) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		snapshot: snapshot,
		clients:  make(map[*client]struct{}),
	}
}

// ServeWS upgrades the request and keeps the client registered until it disconnects
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[cl] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	slog.Debug("WebSocket client connected", "remote", c.Request.RemoteAddr, "clients", count)

	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		count := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		slog.Debug("WebSocket client disconnected", "remote", c.Request.RemoteAddr, "clients", count)
	}()

	if h.snapshot != nil {
		if err := cl.send(h.snapshot()); err != nil {
			return
		}
	}

	// Clients only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends ev to all connected clients
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		h.sent.Add(1)
		if err := cl.send(ev); err != nil {
			slog.Debug("Broadcast failed", "remote", cl.conn.RemoteAddr().String(), "error", err)
		}
	}
}

// BroadcastRecording pushes one changed recording
func (h *Hub) BroadcastRecording(rec recording.Recording) {
	h.Broadcast(Event{Type: "recording", Recording: &rec})
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for cl := range h.clients {
		cl.mu.Lock()
		cl.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		cl.mu.Unlock()
		cl.conn.Close()
	}
}
