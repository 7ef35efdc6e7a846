package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection and blocks until it closes.
func ServeWs(hub *Hub, conn *websocket.Conn, audience string, onMessage InboundHandler) {
	client := NewClient(hub, conn, audience, onMessage)
	if !hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
