package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection. Replies queued on Send and events from
// the stream passed to WritePump share a single writer.
type Client struct {
	ID       string
	PlayerID string
	Conn     *websocket.Conn
	Send     chan any
}

func NewClient(id, playerID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:       id,
		PlayerID: playerID,
		Conn:     conn,
		Send:     make(chan any, 16),
	}
}

// Reply queues v for this client only. It reports false when the client is
// too far behind to take it.
func (c *Client) Reply(v any) bool {
	select {
	case c.Send <- v:
		return true
	default:
		return false
	}
}

// ReadPump passes every text frame to handle until the connection fails or
// the peer stops answering pings.
func (c *Client) ReadPump(handle func([]byte)) error {
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		handle(msg)
	}
}

// WritePump writes events and replies as JSON until events is closed or a
// write fails, then closes the connection.
func WritePump[T any](c *Client, events <-chan T) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-events:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				return err
			}
		case v := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(v); err != nil {
				return err
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
