package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Streams are consumed by arbitrary dashboards and bots.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and serves the subscriber until it
// disconnects. At capacity the socket is closed with close code 1008
// (policy violation) right after the handshake.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugw("websocket upgrade failed", "err", err)
		return
	}

	sub, err := h.Register(wsTransport{conn})
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "server at capacity")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer h.Unregister(sub)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				// Malformed payload; the connection itself is fine.
				sub.enqueue(Message{Type: TypeError, Message: "invalid JSON"})
				continue
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.HandleMessage(sub, msg)
	}
}

// wsTransport adapts *websocket.Conn to the Transport interface with a
// per-write deadline.
type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) WriteJSON(v any) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(v)
}

func (t wsTransport) Close() error {
	return t.conn.Close()
}
