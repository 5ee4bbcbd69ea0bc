package broadcast

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a websocket connection, registers a
// client with the hub under clientID, and runs its write pump until the
// connection closes, at which point the client is removed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sink, err := h.AddClient(clientID)
	if err != nil {
		return err
	}
	defer h.RemoveClient(clientID)

	go drainIncoming(conn, sink)

	for msg := range sink.Receive() {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return err
		}
	}
	return nil
}

// drainIncoming reads (and discards, other than using it as an activity
// signal) client-originated messages so the connection's read deadline
// machinery stays serviced and a dead TCP peer is detected promptly.
func drainIncoming(conn *websocket.Conn, sink *ClientSink) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		sink.updateActivity()
	}
}
