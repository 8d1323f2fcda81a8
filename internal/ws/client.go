package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/config"
)

// Client is one websocket connection. Outbound frames go through a bounded
// queue drained by writePump.
type Client struct {
	identity auth.Identity
	info     ConnInfo
	conn     *websocket.Conn
	send     chan []byte

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Bool
}

func NewClient(conn *websocket.Conn, identity auth.Identity, info ConnInfo, buffer int) *Client {
	if info.ConnID == "" {
		info.ConnID = newConnID()
	}
	info.UserID = identity.UserID
	return &Client{
		identity: identity,
		info:     info,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string              { return c.info.ConnID }
func (c *Client) UserID() int             { return c.identity.UserID }
func (c *Client) Username() string        { return c.identity.Username }
func (c *Client) Identity() auth.Identity { return c.identity }
func (c *Client) Info() ConnInfo          { return c.info }

// Enqueue queues payload without blocking. It reports false when the queue
// is full or the client is closed.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops the write pump and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// drop closes a client that could not keep up with its outbound queue.
func (c *Client) drop() {
	c.dropped.Store(true)
	c.Close()
}

func (c *Client) Dropped() bool {
	return c.dropped.Load()
}

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump delivers inbound frames to handle until the connection fails and
// returns the read error.
func (c *Client) readPump(cfg config.WSConfig, handle func([]byte)) error {
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(message)
	}
}

func (c *Client) writePump(cfg config.WSConfig) {
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
