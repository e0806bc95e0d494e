package notify

import (
	"sync"
	"time"

	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/gorilla/websocket"
)

// WSChannel is a Channel backed by a WebSocket connection.
// gorilla/websocket allows one concurrent writer, so writes are serialized.
type WSChannel struct {
	conn      *websocket.Conn
	writeWait time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewWSChannel wraps an upgraded connection
func NewWSChannel(conn *websocket.Conn, writeWait time.Duration) *WSChannel {
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &WSChannel{
		conn:      conn,
		writeWait: writeWait,
		done:      make(chan struct{}),
	}
}

// Send writes event as a JSON text frame
func (c *WSChannel) Send(event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrChannelClosed
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(event)
}

// Close sends a close frame and releases the connection. Safe to call more than once.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	deadline := time.Now().Add(c.writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}

// Serve keeps the connection alive with pings and blocks until the peer goes
// away or the channel is closed locally. Inbound messages are ignored.
func (c *WSChannel) Serve(pingInterval, pongWait time.Duration) {
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	if pingInterval <= 0 || pingInterval >= pongWait {
		pingInterval = pongWait * 9 / 10
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pingLoop(pingInterval)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *WSChannel) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
