package websocket

import (
	"context"
	"errors"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	// Clients only send control frames; anything larger is abuse.
	readLimit = 4 << 10
)

// Client is one connection of a couple member.
type Client struct {
	hub      *Hub
	conn     *ws.Conn
	coupleID string
	userID   string
	send     chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, coupleID, userID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		coupleID: coupleID,
		userID:   userID,
		send:     make(chan []byte, sendBufferSize),
	}
}

// Run serves the connection until either side closes it. The partner's
// clients see presence online/offline messages around the session.
func (c *Client) Run(ctx context.Context) {
	c.conn.SetReadLimit(readLimit)
	c.hub.Register(c)
	c.hub.Broadcast(c.coupleID, NewMessage("presence", "online", c.userID, nil))
	defer func() {
		c.hub.Unregister(c)
		c.hub.Broadcast(c.coupleID, NewMessage("presence", "offline", c.userID, nil))
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		c.writeLoop(ctx)
	}()

	err := c.readLoop(ctx)
	switch ws.CloseStatus(err) {
	case ws.StatusNormalClosure, ws.StatusGoingAway:
	default:
		if err != nil && !errors.Is(err, context.Canceled) {
			c.hub.logger.Debug("websocket closed", "couple_id", c.coupleID, "user_id", c.userID, "error", err)
		}
	}
	c.conn.Close(ws.StatusNormalClosure, "")
}

// readLoop discards client frames; it exists so control frames are handled
// and a closed connection is noticed.
func (c *Client) readLoop(ctx context.Context) error {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
