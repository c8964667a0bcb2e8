package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"duochat/pkg/logger"
	"duochat/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var timeNow = time.Now

// Client is one live websocket connection bound to a user. Outbound frames
// go through a buffered channel drained by the write pump; Deliver never
// blocks the caller.
type Client struct {
	user string
	conn *websocket.Conn
	out  chan models.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(user string, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		user: user,
		conn: conn,
		out:  make(chan models.Envelope, buffer),
		done: make(chan struct{}),
	}
}

// Deliver queues an event for the client. Returns false when the client is
// gone or its buffer is full; a full buffer closes the connection since the
// reader has stopped keeping up.
func (c *Client) Deliver(event string, payload any) bool {
	env := models.NewEnvelope(event, payload)
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- env:
		return true
	default:
		logger.Warn("client_buffer_full", "user", c.user, "event", event)
		c.Close()
		return false
	}
}

// writeNow writes an envelope synchronously. Only valid before the write
// pump starts; used to reject connections during the announce handshake.
func (c *Client) writeNow(event string, payload any) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(models.NewEnvelope(event, payload))
}

// Close shuts the connection down once. Safe to call from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case env := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) readEnvelope() (models.Envelope, error) {
	var env models.Envelope
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, err
	}
	return env, nil
}
