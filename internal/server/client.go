// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/groupchat/internal/fanout"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Client is one WebSocket connection. It implements fanout.Conn: the hub
// registers it, the broadcaster associates it with a group and queues
// messages on it.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	inbound        InboundHandler
	addr           string
	mu             sync.Mutex
	closed         bool
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	log            *slog.Logger
}

// NewClient creates a Client for conn. Inbound payloads read from conn are
// handed to inbound one at a time, in the order they arrive.
func NewClient(conn *websocket.Conn, hub *Hub, inbound InboundHandler, cfg Config, addr string) *Client {
	cfg = sanitizeConfig(cfg)
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	perSecond := float64(cfg.RateLimit.Burst) / cfg.RateLimit.RefillInterval.Seconds()
	id := uuid.NewString()

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		inbound:        inbound,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        rate.NewLimiter(rate.Limit(perSecond), cfg.RateLimit.Burst),
		rateLimit:      cfg.RateLimit,
		log:            hub.log.With("conn", id, "addr", addr),
	}
}

func (c *Client) ID() string {
	return c.id
}

// IsOpen reports whether the client still accepts messages.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Send queues payload for the write pump. It never blocks: a full queue or a
// closed client is reported as an error and the payload is dropped.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fanout.ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return fanout.ErrSendBufferFull
	}
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// markClosed stops accepting messages and closes the send channel, which
// makes the write pump send a close frame and exit. Safe to call repeatedly.
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError logs a read failure at a level matching how expected it is.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("Client disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("Client connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("Unexpected WebSocket error", "error", err)
	default:
		c.log.Warn("WebSocket read error", "error", err)
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Warn("Rate limit exceeded; discarding message",
			"burst", c.rateLimit.Burst,
			"interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage hands a raw payload to the inbound handler. Failures are
// logged and never end the connection.
func (c *Client) processMessage(rawMessage []byte) {
	err := c.inbound.HandleInbound(c.hub.ctx, c, rawMessage)
	if err != nil {
		c.log.Log(c.hub.ctx, fanout.LogLevel(err), "Inbound message dropped", "error", err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection in readPump", "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection in writePump", "error", err)
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error writing close message", "error", err)
	}
	return false
}

// writeTextMessage writes message and then every message already queued, one
// frame each so receivers can decode every frame as a single JSON document.
func (c *Client) writeTextMessage(message []byte) bool {
	if !c.writeFrame(message) {
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			return c.writeCloseMessage()
		}
		if !c.writeFrame(queued) {
			return false
		}
	}
	return true
}

func (c *Client) writeFrame(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}
