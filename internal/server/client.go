// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client represents an authenticated WebSocket connection. It is the
// engine's Sink for that connection: events are encoded and queued on the
// send channel, which the write pump drains.
type Client struct {
	id             string
	identity       chat.Identity
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	logger         *slog.Logger
	maxMessageSize int64
	budget         *frameBudget
	rateLimit      RateLimitConfig

	mu        sync.Mutex
	closed    bool
	kickOnce  sync.Once
	closeOnce sync.Once
}

// NewClient creates a Client for an upgraded connection acting as identity.
// It is given a fresh connection id and a buffered send channel sized from
// the active configuration.
func NewClient(conn *websocket.Conn, hub *Hub, identity chat.Identity, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.New().String()
	logger := slog.Default()
	if hub != nil && hub.logger != nil {
		logger = hub.logger
	}

	return &Client{
		id:             id,
		identity:       identity,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		logger:         logger.With("conn_id", id, "username", identity.Username, "remote_addr", addr),
		maxMessageSize: cfg.MaxMessageSize,
		budget:         newFrameBudget(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval, nil),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the connection id the engine knows this client by.
func (c *Client) ID() string {
	return c.id
}

// Identity returns the user this client is authenticated as.
func (c *Client) Identity() chat.Identity {
	return c.identity
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Deliver queues ev for the write pump without blocking. A client whose
// buffer is full is too slow to keep up; the event is dropped and the
// connection is closed so it can reconnect and resynchronise.
func (c *Client) Deliver(ev chat.Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("failed to encode event", "event", ev.Type, "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.kick()
		return false
	}
}

// kick closes the underlying connection once. The read pump then fails and
// unregisters the client.
func (c *Client) kick() {
	c.kickOnce.Do(func() {
		c.logger.Warn("send buffer full; closing slow connection")
		if c.conn != nil {
			go c.closeConnection()
		}
	})
}

// closeSend marks the client closed and closes its send channel, which makes
// the write pump send a close frame and exit.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("failed to set initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError logs why the read loop stopped.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected websocket close", "error", err)
	default:
		c.logger.Warn("websocket read error", "error", err)
	}
}

// admit charges frameType against the connection's budget. A refused frame is
// answered with a rate_limited error event.
func (c *Client) admit(frameType string) bool {
	if c.budget == nil || c.budget.allow(frameType) {
		return true
	}
	c.logger.Warn("rate limit exceeded; discarding frame",
		"type", frameType,
		"burst", c.rateLimit.Burst,
		"interval", c.rateLimit.RefillInterval)
	c.Deliver(errorEvent(errRateLimited))
	return false
}

// processMessage applies one inbound frame and reports a rejected frame back
// to the client. It returns false once the client has logged out.
func (c *Client) processMessage(raw []byte) bool {
	msg, err := decodeFrame(raw)
	if !c.admit(msg.Type) {
		return true
	}

	keepOpen := true
	if err == nil {
		keepOpen, err = dispatch(c.hub.engine, c.id, msg)
	}
	if err != nil {
		if errors.Is(err, chat.ErrNotInRoom) {
			c.logger.Debug("frame rejected", "error", err)
		} else {
			c.logger.Info("frame rejected", "error", err)
		}
		c.Deliver(errorEvent(err))
	}
	return keepOpen
}

// readPump applies inbound frames until the connection fails or the client
// logs out. Unregistering closes the send channel, and the write pump then
// sends a close frame and closes the connection.
func (c *Client) readPump() {
	defer c.hub.unregisterClient(c)

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.processMessage(raw) {
			return
		}
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
		c.logger.Warn("error closing connection", "error", err)
	}
}

// handleMessage writes one queued event and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("failed to set write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("error writing close message", "error", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("failed to set write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("error writing ping", "error", err)
		return false
	}
	return true
}
