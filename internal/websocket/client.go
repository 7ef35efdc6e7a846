package websocket

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 256
)

// InboundHandler receives text frames read from the connection.
type InboundHandler func(client *Client, payload []byte)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	// Audience is the routing key, see VisitorAudience and OperatorAudience.
	Audience string

	// Buffered channel of outbound frames. Closed by the hub.
	Send chan []byte

	onMessage InboundHandler
}

func NewClient(hub *Hub, conn *websocket.Conn, audience string, onMessage InboundHandler) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Audience:  audience,
		Send:      make(chan []byte, sendBuffer),
		onMessage: onMessage,
	}
}

// Reply queues a frame for this connection only. Frames for a dropped or
// saturated connection are discarded.
func (c *Client) Reply(data []byte) {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	for _, registered := range c.Hub.clients[c.Audience] {
		if registered == c {
			select {
			case c.Send <- data:
			default:
			}
			return
		}
	}
}

// readPump pumps inbound frames to onMessage until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"audience": c.Audience, "error": err.Error()})
			}
			return
		}
		if messageType == websocket.TextMessage && c.onMessage != nil {
			c.onMessage(c, payload)
		}
	}
}

// writePump pumps frames from the hub to the websocket connection, one frame
// per websocket message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
