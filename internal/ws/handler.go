package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin through the UI; auth happens at
	// the API key layer in front of this handler.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades subscribers onto the hub.
type Handler struct {
	hub *Hub
	lg  *zap.Logger
}

// NewHandler builds a WebSocket handler serving status feeds from hub.
func NewHandler(hub *Hub, lg *zap.Logger) *Handler {
	return &Handler{hub: hub, lg: lg}
}

// Subscribe upgrades the connection and streams status updates for the order
// id in the route until either side disconnects.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	if orderID == "" {
		http.Error(w, "order id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.lg.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{orderID: orderID, send: make(chan []byte, 8)}
	select {
	case h.hub.register <- c:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go h.writeLoop(conn, c)
	h.readLoop(conn, c)
}

// readLoop drains client frames to process close/pong control messages.
func (h *Handler) readLoop(conn *websocket.Conn, c *client) {
	defer func() {
		select {
		case h.hub.unregister <- c:
		case <-h.hub.done:
		}
		conn.Close()
	}()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
