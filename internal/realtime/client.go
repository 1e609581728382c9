package realtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/triage-api/internal/config"
)

// Conn is the subset of *websocket.Conn the pumps need.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one WebSocket connection.
type Client struct {
	id      string
	conn    Conn
	send    chan []byte
	limiter *rate.Limiter

	// guarded by Hub.mu
	rooms   map[string]struct{}
	staffID string
}

func newClient(conn Conn, staffID string, cfg config.RealtimeConfig) *Client {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	limit := rate.Inf
	if cfg.CommandRate > 0 {
		limit = rate.Limit(cfg.CommandRate)
	}
	burst := cfg.CommandBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, buf),
		limiter: rate.NewLimiter(limit, burst),
		rooms:   make(map[string]struct{}),
		staffID: staffID,
	}
}

func (c *Client) ID() string { return c.id }

// readPump feeds inbound frames to handle until the connection fails or the
// peer stops answering pings.
func (c *Client) readPump(cfg config.RealtimeConfig, handle func(*Client, []byte), done func(*Client)) {
	defer func() {
		done(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(cfg.MaxMessageBytes)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(c, data)
	}
}

// writePump is the only writer on the connection. It exits when the hub
// closes the send channel or a write fails.
func (c *Client) writePump(cfg config.RealtimeConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
